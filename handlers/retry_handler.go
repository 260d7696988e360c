package handlers

import (
	"net/http"

	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/gin-gonic/gin"
)

type RetryHandler struct {
	retries service.RetryServiceInterface
}

func NewRetryHandler(retries service.RetryServiceInterface) *RetryHandler {
	return &RetryHandler{retries: retries}
}

type RetryRequest struct {
	// OperationID is charge:<individualPaymentId>, refund:<refundRequestId> or evaluate:<splitPaymentId>.
	OperationID string `json:"operationId" binding:"required"`
}

// RetryOperationHandler godoc
// @Summary Retry an operation
// @Description Re-enters a charge, refund or evaluation through its normal entry point
// @Tags operations
// @Accept json
// @Produce json
// @Param request body RetryRequest true "Operation to retry"
// @Success 200 {object} types.RetryResult
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /operations/retry [post]
// @Security BearerAuth
func (h *RetryHandler) RetryOperationHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req RetryRequest
	if !bindJSONOrError(c, &req) {
		return
	}

	result, err := h.retries.Retry(c.Request.Context(), req.OperationID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
