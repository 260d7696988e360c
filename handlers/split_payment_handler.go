package handlers

import (
	"net/http"

	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/gin-gonic/gin"
)

// SplitPaymentHandler serves split payments and the reminder/charge
// actions on their individual payments.
type SplitPaymentHandler struct {
	splits  service.SplitPaymentServiceInterface
	charges service.ChargeServiceInterface
}

func NewSplitPaymentHandler(splits service.SplitPaymentServiceInterface, charges service.ChargeServiceInterface) *SplitPaymentHandler {
	return &SplitPaymentHandler{splits: splits, charges: charges}
}

// CreateSplitPaymentHandler godoc
// @Summary Create a split payment
// @Description Divides a booking total among participants and creates one individual payment per participant
// @Tags split-payments
// @Accept json
// @Produce json
// @Param request body types.SplitPaymentCreate true "Split payment details"
// @Success 201 {object} types.SplitPaymentView
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /split-payments [post]
// @Security BearerAuth
func (h *SplitPaymentHandler) CreateSplitPaymentHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req types.SplitPaymentCreate
	if !bindJSONOrError(c, &req) {
		return
	}

	view, err := h.splits.CreateSplitPayment(c.Request.Context(), userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListSplitPaymentsHandler godoc
// @Summary List split payments
// @Description Lists split payments the caller organizes or participates in
// @Tags split-payments
// @Produce json
// @Success 200 {array} types.SplitPayment
// @Failure 401 {object} middleware.ErrorResponse
// @Router /split-payments [get]
// @Security BearerAuth
func (h *SplitPaymentHandler) ListSplitPaymentsHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	splits, err := h.splits.ListForUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if splits == nil {
		splits = []*types.SplitPayment{}
	}
	c.JSON(http.StatusOK, splits)
}

// GetSplitPaymentHandler godoc
// @Summary Get a split payment
// @Description Returns the split payment with its individual payments and progress
// @Tags split-payments
// @Produce json
// @Param id path string true "Split payment ID"
// @Success 200 {object} types.SplitPaymentView
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /split-payments/{id} [get]
// @Security BearerAuth
func (h *SplitPaymentHandler) GetSplitPaymentHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.splits.GetSplitPaymentView(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// EvaluateSplitPaymentHandler godoc
// @Summary Evaluate a split payment
// @Description Re-runs the completion decision and returns the resulting view
// @Tags split-payments
// @Produce json
// @Param id path string true "Split payment ID"
// @Success 200 {object} types.SplitPaymentView
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /split-payments/{id}/evaluate [post]
// @Security BearerAuth
func (h *SplitPaymentHandler) EvaluateSplitPaymentHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.splits.EvaluateForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ChargeHandler godoc
// @Summary Start a charge
// @Description Claims the individual payment and creates a processor intent the client confirms
// @Tags individual-payments
// @Produce json
// @Param id path string true "Individual payment ID"
// @Success 200 {object} types.ChargeHandle
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Failure 429 {object} middleware.ErrorResponse
// @Failure 502 {object} middleware.ErrorResponse
// @Router /individual-payments/{id}/charge [post]
// @Security BearerAuth
func (h *SplitPaymentHandler) ChargeHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	handle, err := h.charges.InitiateCharge(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handle)
}

// SyncPaymentHandler godoc
// @Summary Reconcile a payment
// @Description Asks the processor for the intent's outcome when a webhook was missed
// @Tags individual-payments
// @Produce json
// @Param id path string true "Individual payment ID"
// @Success 200 {object} types.IndividualPayment
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /individual-payments/{id}/sync [post]
// @Security BearerAuth
func (h *SplitPaymentHandler) SyncPaymentHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	payment, err := h.charges.SyncPayment(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// SendReminderHandler godoc
// @Summary Remind a participant
// @Description Sends a payment reminder; the organizer may remind anyone, a participant only themselves
// @Tags individual-payments
// @Produce json
// @Param id path string true "Individual payment ID"
// @Success 202 {object} types.IndividualPayment
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /individual-payments/{id}/reminders [post]
// @Security BearerAuth
func (h *SplitPaymentHandler) SendReminderHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	payment, err := h.splits.RequestReminder(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, payment)
}

// GetPayLinkHandler godoc
// @Summary Resolve a pay link
// @Description Resolves a signed reminder link to the payment it points at
// @Tags individual-payments
// @Produce json
// @Param token path string true "Signed pay-link token"
// @Success 200 {object} types.PayLinkView
// @Failure 401 {object} middleware.ErrorResponse
// @Router /pay-links/{token} [get]
func (h *SplitPaymentHandler) GetPayLinkHandler(c *gin.Context) {
	view, err := h.charges.DescribePayLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}
