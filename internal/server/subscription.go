package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"github.com/intellispire/commercestore/pkg/db/pagination"
)

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Principal = requestPrincipal(c)

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
		ProductID  string `form:"product_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionRequest{
		Status:     strings.TrimSpace(query.Status),
		CustomerID: strings.TrimSpace(query.CustomerID),
		ProductID:  strings.TrimSpace(query.ProductID),
		PageToken:  query.PageToken,
		PageSize:   query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	view, err := s.subscriptionSvc.GetView(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subscription":    view.Record(),
		"status_label":    view.StatusLabel(),
		"times_billed":    view.TimesBilled(),
		"times_remaining": view.BillTimesRemaining(),
		"can_cancel":      view.CanCancel(),
	}})
}

func (s *Server) RenewSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	var body struct {
		TransactionID      string     `json:"transaction_id"`
		Gateway            string     `json:"gateway"`
		Amount             float64    `json:"amount"`
		Tax                *float64   `json:"tax"`
		ExpirationOverride *time.Time `json:"expiration_override"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Renew(c.Request.Context(), subscriptiondomain.RenewRequest{
		SubscriptionID:     id,
		TransactionID:      strings.TrimSpace(body.TransactionID),
		Gateway:            strings.TrimSpace(body.Gateway),
		Amount:             body.Amount,
		Tax:                body.Tax,
		ExpirationOverride: body.ExpirationOverride,
		Principal:          requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subscription":     resp.Subscription,
		"renewal_order_id": resp.RenewalOrderID,
		"completed":        resp.Completed,
	}})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		SubscriptionID: id,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CompleteSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	var body struct {
		AdminOverride bool `json:"admin_override"`
	}
	_ = c.ShouldBindJSON(&body)

	err := s.subscriptionSvc.Complete(c.Request.Context(), subscriptiondomain.CompleteRequest{
		SubscriptionID: id,
		AdminOverride:  body.AdminOverride,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ExpireSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	var body struct {
		VerifyWithGateway bool `json:"verify_with_gateway"`
	}
	_ = c.ShouldBindJSON(&body)

	err := s.subscriptionSvc.Expire(c.Request.Context(), subscriptiondomain.ExpireRequest{
		SubscriptionID:    id,
		VerifyWithGateway: body.VerifyWithGateway,
		Principal:         requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) FailSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	err := s.subscriptionSvc.Fail(c.Request.Context(), subscriptiondomain.FailRequest{
		SubscriptionID: id,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RetrySubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	err := s.subscriptionSvc.Retry(c.Request.Context(), subscriptiondomain.RetryRequest{
		SubscriptionID: id,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeleteSubscription(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	err := s.subscriptionSvc.Delete(c.Request.Context(), subscriptiondomain.DeleteRequest{
		SubscriptionID: id,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListSubscriptionNotes(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	notes, err := s.subscriptionSvc.ListNotes(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notes})
}

func (s *Server) AddSubscriptionNote(c *gin.Context) {
	id, ok := subscriptionIDParam(c)
	if !ok {
		return
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Body) == "" {
		AbortWithError(c, newValidationError("body", "invalid_body", "note body is required"))
		return
	}

	err := s.subscriptionSvc.AddNote(c.Request.Context(), subscriptiondomain.AddNoteRequest{
		SubscriptionID: id,
		Body:           body.Body,
		Principal:      requestPrincipal(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func subscriptionIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return "", false
	}
	return id, true
}

// requestPrincipal names the actor recorded in audit notes. Operators
// identify themselves with the X-Principal header; everything else is
// attributed to automation.
func requestPrincipal(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("X-Principal"))
}
