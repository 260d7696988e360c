package docs

import "time"

// Models in this file only shape the Swagger output.

// ErrorResponse mirrors the JSON error body every endpoint returns.
// @Description Error information
type ErrorResponse struct {
	// Broad error category
	Type string `json:"type" example:"CONFLICT"`

	// Machine readable reason
	Code string `json:"code,omitempty" example:"already_paid"`

	Message string `json:"message" example:"Payment already completed"`

	// Extra context, omitted for internal errors
	Details string `json:"details,omitempty"`

	RequestID string `json:"requestId,omitempty" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
}

// SplitPaymentResponse is the participant view of a split payment.
// @Description Split payment summary
type SplitPaymentResponse struct {
	ID              string    `json:"id" example:"a1b2c3d4-e5f6-7890-abcd-ef1234567890"`
	Status          string    `json:"status" example:"pending"`
	TotalAmount     int64     `json:"totalAmount" example:"9000"`
	Currency        string    `json:"currency" example:"USD"`
	DisplayTotal    string    `json:"displayTotal" example:"$90.00"`
	PaidCount       int       `json:"paidCount" example:"1"`
	PaymentDeadline time.Time `json:"paymentDeadline" example:"2024-06-01T00:00:00Z"`
}

// StreamMessage is one frame on the split payment stream.
// @Description Realtime stream frame
type StreamMessage struct {
	// snapshot, event or pong
	Type    string `json:"type" example:"event"`
	Payload []byte `json:"payload,omitempty" swaggertype:"object"`
}
