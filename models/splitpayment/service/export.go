package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/xuri/excelize/v2"
)

const refundSheet = "Refunds"

var refundExportHeaders = []string{
	"Refund ID", "Split Payment ID", "Individual Payment ID", "Requester ID",
	"Reason", "Amount Type", "Requested Amount", "Processed Amount",
	"Status", "Failure Reason", "Reviewer ID", "Evidence Files", "Created At", "Updated At",
}

// ExportRefunds writes refund requests with the given statuses as an XLSX
// workbook. No statuses exports everything.
func (s *RefundService) ExportRefunds(ctx context.Context, w io.Writer, statuses []types.RefundStatus) error {
	requests, err := s.refunds.ListRefundRequestsByStatus(ctx, statuses)
	if err != nil {
		return storeError(err, "Refund requests", "export")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(refundSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, header := range refundExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(refundSheet, cell, header)
	}

	for row, req := range requests {
		values := []any{
			req.ID,
			req.SplitPaymentID,
			deref(req.IndividualPaymentID),
			req.RequesterID,
			string(req.ReasonCategory),
			string(req.AmountType),
			requestedAmount(req),
			req.ProcessedAmount,
			string(req.Status),
			deref(req.FailureReason),
			deref(req.ReviewerID),
			strings.Join(req.EvidenceKeys, "\n"),
			req.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			req.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(refundSheet, cell, v)
		}
	}

	if err := f.SetColWidth(refundSheet, "A", "D", 38); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	s.log.Infow("Refund export written", "rows", len(requests), "statuses", statuses)
	return nil
}

// requestedAmount is blank for full refunds, whose amount is only known when processed.
func requestedAmount(req *types.RefundRequest) any {
	if req.CustomAmount == nil {
		return ""
	}
	return *req.CustomAmount
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
