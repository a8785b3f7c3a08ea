package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptDateLayout is the calendar date format receipts are uploaded with.
const ReceiptDateLayout = "2006-01-02"

type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// Receipt is an invoice an approved vendor uploads for payment review.
type Receipt struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	Status      ReceiptStatus   `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptDate time.Time       `json:"receipt_date"`
	Description string          `json:"description,omitempty"`

	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type,omitempty"`

	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ReceiptUpload struct {
	Amount      decimal.Decimal
	ReceiptDate time.Time
	Description string
	FileName    string
	MimeType    string
}

type ReceiptOutcome struct {
	Receipt           *Receipt `json:"receipt"`
	NotificationError string   `json:"notification_error,omitempty"`
}
