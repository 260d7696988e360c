package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type RefundHandler struct {
	refunds          service.RefundServiceInterface
	maxEvidenceBytes int64
}

func NewRefundHandler(refunds service.RefundServiceInterface, maxEvidenceBytes int64) *RefundHandler {
	if maxEvidenceBytes <= 0 {
		maxEvidenceBytes = service.DefaultMaxEvidenceBytes
	}
	return &RefundHandler{refunds: refunds, maxEvidenceBytes: maxEvidenceBytes}
}

// CreateRefundRequestHandler godoc
// @Summary Request a refund
// @Description Opens a refund request against a split payment. Participants are scoped to their own payment
// @Tags refunds
// @Accept json
// @Produce json
// @Param request body types.RefundRequestCreate true "Refund request"
// @Success 201 {object} types.RefundRequestResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Router /refunds [post]
// @Security BearerAuth
func (h *RefundHandler) CreateRefundRequestHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req types.RefundRequestCreate
	if !bindJSONOrError(c, &req) {
		return
	}

	resp, err := h.refunds.CreateRefundRequest(c.Request.Context(), userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetRefundRequestHandler godoc
// @Summary Get a refund request
// @Tags refunds
// @Produce json
// @Param id path string true "Refund request ID"
// @Success 200 {object} types.RefundRequestResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /refunds/{id} [get]
// @Security BearerAuth
func (h *RefundHandler) GetRefundRequestHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	resp, err := h.refunds.GetRefundRequest(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListRefundRequestsHandler godoc
// @Summary List refund requests for a split payment
// @Tags refunds
// @Produce json
// @Param id path string true "Split payment ID"
// @Success 200 {array} types.RefundRequest
// @Failure 403 {object} middleware.ErrorResponse
// @Router /split-payments/{id}/refunds [get]
// @Security BearerAuth
func (h *RefundHandler) ListRefundRequestsHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	requests, err := h.refunds.ListRefundRequests(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if requests == nil {
		requests = []*types.RefundRequest{}
	}
	c.JSON(http.StatusOK, requests)
}

// StartReviewHandler godoc
// @Summary Start reviewing a refund request
// @Tags refunds
// @Produce json
// @Param id path string true "Refund request ID"
// @Success 200 {object} types.RefundRequest
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /refunds/{id}/review [post]
// @Security BearerAuth
func (h *RefundHandler) StartReviewHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	req, err := h.refunds.StartReview(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// DenyHandler godoc
// @Summary Deny a refund request
// @Tags refunds
// @Accept json
// @Produce json
// @Param id path string true "Refund request ID"
// @Param request body types.RefundReviewUpdate false "Review note"
// @Success 200 {object} types.RefundRequest
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /refunds/{id}/deny [post]
// @Security BearerAuth
func (h *RefundHandler) DenyHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var update types.RefundReviewUpdate
	if c.Request.ContentLength != 0 && !bindJSONOrError(c, &update) {
		return
	}

	req, err := h.refunds.Deny(c.Request.Context(), c.Param("id"), userID, update.Note)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ProcessRefundHandler godoc
// @Summary Approve and process a refund request
// @Description Refunds the eligible amount through the processor. A failed request can be processed again and resumes where it stopped
// @Tags refunds
// @Produce json
// @Param id path string true "Refund request ID"
// @Success 200 {object} types.RefundRequest
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Failure 502 {object} middleware.ErrorResponse
// @Router /refunds/{id}/process [post]
// @Security BearerAuth
func (h *RefundHandler) ProcessRefundHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	req, err := h.refunds.Approve(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// UploadEvidenceHandler godoc
// @Summary Attach refund evidence
// @Description Uploads a pdf, jpeg, png or heic file supporting the refund request
// @Tags refunds
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Refund request ID"
// @Param file formData file true "Evidence file"
// @Success 201 {object} types.RefundRequest
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Router /refunds/{id}/evidence [post]
// @Security BearerAuth
func (h *RefundHandler) UploadEvidenceHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	// file plus 1MB for the rest of the form
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxEvidenceBytes+1024*1024)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid_form", "a file field is required"))
		return
	}
	if fileHeader.Size > h.maxEvidenceBytes {
		_ = c.Error(apperrors.ValidationFailed("file_too_large", fmt.Sprintf("file exceeds maximum of %d bytes", h.maxEvidenceBytes)))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid_form", "failed to read uploaded file"))
		return
	}
	defer file.Close()

	req, err := h.refunds.AttachEvidence(c.Request.Context(), c.Param("id"), userID, fileHeader.Filename, file)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// GetEvidenceURLHandler godoc
// @Summary Get a download link for refund evidence
// @Tags refunds
// @Produce json
// @Param id path string true "Refund request ID"
// @Param key query string true "Evidence key"
// @Success 200 {object} map[string]string
// @Failure 404 {object} middleware.ErrorResponse
// @Router /refunds/{id}/evidence [get]
// @Security BearerAuth
func (h *RefundHandler) GetEvidenceURLHandler(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	key := c.Query("key")
	if key == "" {
		_ = c.Error(apperrors.ValidationFailed("invalid_request", "key is required"))
		return
	}

	url, err := h.refunds.EvidenceURL(c.Request.Context(), c.Param("id"), key, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// ExportRefundsHandler godoc
// @Summary Export refund requests
// @Description Downloads refund requests as an XLSX workbook, optionally filtered by status
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query []string false "Statuses to include" collectionFormat(multi)
// @Success 200 {file} file
// @Failure 403 {object} middleware.ErrorResponse
// @Router /admin/refunds/export [get]
// @Security BearerAuth
func (h *RefundHandler) ExportRefundsHandler(c *gin.Context) {
	var statuses []types.RefundStatus
	for _, s := range c.QueryArray("status") {
		status := types.RefundStatus(s)
		if !status.IsValid() {
			_ = c.Error(apperrors.ValidationFailed("invalid_status", fmt.Sprintf("unknown refund status %q", s)))
			return
		}
		statuses = append(statuses, status)
	}

	// Buffer the workbook so a failure still renders as a JSON error.
	var buf bytes.Buffer
	if err := h.refunds.ExportRefunds(c.Request.Context(), &buf, statuses); err != nil {
		_ = c.Error(err)
		return
	}

	filename := fmt.Sprintf("refunds-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
