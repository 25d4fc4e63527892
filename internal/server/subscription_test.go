package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
)

type fakeSubscriptionService struct {
	subscriptiondomain.Service

	cancelCalls   int
	lastPrincipal string
	getViewErr    error
	cancelErr     error
}

func (f *fakeSubscriptionService) GetView(ctx context.Context, id string) (subscriptiondomain.View, error) {
	_ = ctx
	_ = id
	if f.getViewErr != nil {
		return subscriptiondomain.View{}, f.getViewErr
	}
	sub := subscriptiondomain.Subscription{
		ID:     snowflake.ID(100),
		Status: subscriptiondomain.StatusActive,
	}
	return subscriptiondomain.NewView(sub, nil, 1, false), nil
}

func (f *fakeSubscriptionService) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) error {
	f.cancelCalls++
	f.lastPrincipal = req.Principal
	_ = ctx
	return f.cancelErr
}

func newHandlerTest(svc subscriptiondomain.Service) (*gin.Engine, *Server) {
	gin.SetMode(gin.TestMode)
	srv := &Server{subscriptionSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	return router, srv
}

func TestGetSubscriptionRejectsMalformedID(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router, srv := newHandlerTest(svc)
	router.GET("/v1/subscriptions/:id", srv.GetSubscriptionByID)

	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions/not-a-snowflake", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestGetSubscriptionNotFoundMapsTo404(t *testing.T) {
	svc := &fakeSubscriptionService{getViewErr: subscriptiondomain.ErrSubscriptionNotFound}
	router, srv := newHandlerTest(svc)
	router.GET("/v1/subscriptions/:id", srv.GetSubscriptionByID)

	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions/100", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestGetSubscriptionIncludesDerivedFields(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router, srv := newHandlerTest(svc)
	router.GET("/v1/subscriptions/:id", srv.GetSubscriptionByID)

	req := httptest.NewRequest(http.MethodGet, "/v1/subscriptions/100", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, field := range []string{"status_label", "times_billed", "times_remaining", "can_cancel"} {
		if !bytes.Contains([]byte(body), []byte(field)) {
			t.Fatalf("expected response to include %q, got %s", field, body)
		}
	}
}

func TestCancelSubscriptionRecordsPrincipalHeader(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router, srv := newHandlerTest(svc)
	router.POST("/v1/subscriptions/:id/cancel", srv.CancelSubscription)

	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions/100/cancel", nil)
	req.Header.Set("X-Principal", "admin:jo")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", svc.cancelCalls)
	}
	if svc.lastPrincipal != "admin:jo" {
		t.Fatalf("expected principal admin:jo, got %q", svc.lastPrincipal)
	}
}

func TestCancelSubscriptionConflictMapsTo409(t *testing.T) {
	svc := &fakeSubscriptionService{cancelErr: subscriptiondomain.ErrInvalidTransition}
	router, srv := newHandlerTest(svc)
	router.POST("/v1/subscriptions/:id/cancel", srv.CancelSubscription)

	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions/100/cancel", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestAddSubscriptionNoteRequiresBody(t *testing.T) {
	svc := &fakeSubscriptionService{}
	router, srv := newHandlerTest(svc)
	router.POST("/v1/subscriptions/:id/notes", srv.AddSubscriptionNote)

	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions/100/notes", bytes.NewBufferString(`{"body":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRunSweepWithoutSchedulerReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/v1/sweep/run", srv.RunSweep)

	req := httptest.NewRequest(http.MethodPost, "/v1/sweep/run", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
