package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDeliversToSubscribedKinds(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var renewed []string
	bus.Subscribe(func(_ context.Context, evt Event) error {
		renewed = append(renewed, evt.SubscriptionID())
		return nil
	}, KindRenewed)

	var cancelled int
	bus.Subscribe(func(_ context.Context, evt Event) error {
		cancelled++
		return nil
	}, KindCancelled)

	bus.Publish(context.Background(), Renewed{ID: "sub_1", Expiration: time.Now()})
	bus.Publish(context.Background(), Renewed{ID: "sub_2"})
	bus.Publish(context.Background(), Expired{ID: "sub_3"})

	require.Equal(t, []string{"sub_1", "sub_2"}, renewed)
	require.Zero(t, cancelled)
}

func TestBusSurvivesFailingHandlers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	calls := 0
	bus.Subscribe(func(_ context.Context, _ Event) error {
		calls++
		panic("boom")
	}, KindExpired)
	bus.Subscribe(func(_ context.Context, _ Event) error {
		calls++
		return errors.New("handler failed")
	}, KindExpired)
	bus.Subscribe(func(_ context.Context, _ Event) error {
		calls++
		return nil
	}, KindExpired)

	bus.Publish(context.Background(), Expired{ID: "sub_1"})

	require.Equal(t, 3, calls)
}
