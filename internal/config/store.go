package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StoreConfig carries store-level billing behavior. These flags feed the
// lifecycle predicates as explicit parameters; nothing reads them from
// ambient globals mid-operation.
type StoreConfig struct {
	// CompletedGrantsAccess treats completed subscriptions as still
	// granting access when evaluating activity.
	CompletedGrantsAccess bool `mapstructure:"completedGrantsAccess"`

	// PricesIncludeTax marks item prices as tax-inclusive, changing how
	// renewal line items are derived from a charged amount.
	PricesIncludeTax bool `mapstructure:"pricesIncludeTax"`

	// RecurringTaxRate, when > 0, back-computes tax from a gross renewal
	// amount that carries no explicit tax figure.
	RecurringTaxRate float64 `mapstructure:"recurringTaxRate"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{}
}

// StoreConfigHolder exposes the current StoreConfig and hot-reloads it when
// the config file changes.
type StoreConfigHolder struct {
	current atomic.Value // holds StoreConfig
}

func NewStoreConfigHolder() (*StoreConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("store")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/commercestore/config")
	v.AddConfigPath("/etc/commercestore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMMERCESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultStoreConfig()
		v.SetDefault("store.completedGrantsAccess", defaults.CompletedGrantsAccess)
		v.SetDefault("store.pricesIncludeTax", defaults.PricesIncludeTax)
		v.SetDefault("store.recurringTaxRate", defaults.RecurringTaxRate)
	}

	var cfg StoreConfig
	if err := v.UnmarshalKey("store", &cfg); err != nil {
		return nil, err
	}

	holder := &StoreConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StoreConfig
		if err := v.UnmarshalKey("store", &updated); err != nil {
			log.Printf("[store-config] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[store-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// StaticStoreConfigHolder wraps a fixed StoreConfig that never reloads.
func StaticStoreConfigHolder(cfg StoreConfig) *StoreConfigHolder {
	h := &StoreConfigHolder{}
	h.current.Store(cfg)
	return h
}

func (h *StoreConfigHolder) Get() StoreConfig {
	return h.current.Load().(StoreConfig)
}
