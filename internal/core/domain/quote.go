package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuoteStatus string

const (
	QuotePendingVendor      QuoteStatus = "pending_vendor"
	QuotePendingVP          QuoteStatus = "pending_vp"
	QuotePendingProcurement QuoteStatus = "pending_procurement"
	QuoteApproved           QuoteStatus = "approved"
	QuoteRejected           QuoteStatus = "rejected"
)

func (s QuoteStatus) Terminal() bool {
	return s == QuoteApproved || s == QuoteRejected
}

// ApproverRole names who acts on a quote approval link.
type ApproverRole string

const (
	RoleVP                 ApproverRole = "vp"
	RoleProcurementManager ApproverRole = "procurement_manager"
)

func (r ApproverRole) Valid() bool {
	return r == RoleVP || r == RoleProcurementManager
}

type Quote struct {
	ID        string      `json:"id"`
	RequestID string      `json:"request_id"`
	Status    QuoteStatus `json:"status"`

	VendorToken      string `json:"-"`
	VPToken          string `json:"-"`
	ProcurementToken string `json:"-"`

	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	FileName       string          `json:"file_name,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	SignedFilePath string          `json:"signed_file_path,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	LinkSentAt  *time.Time `json:"link_sent_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	VP                 Gate   `json:"vp"`
	ProcurementManager Gate   `json:"procurement_manager"`
	RejectionReason    string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *Quote) Gate(role ApproverRole) *Gate {
	switch role {
	case RoleVP:
		return &q.VP
	case RoleProcurementManager:
		return &q.ProcurementManager
	default:
		return nil
	}
}

// ApproverFor maps an approval token to the single gate it may decide.
func (q *Quote) ApproverFor(token string) (ApproverRole, bool) {
	switch {
	case token == "":
		return "", false
	case token == q.VPToken:
		return RoleVP, true
	case token == q.ProcurementToken:
		return RoleProcurementManager, true
	default:
		return "", false
	}
}

// ApproverActor is the audit identity recorded for a gate decision.
func ApproverActor(role ApproverRole) string {
	return "approver:" + string(role)
}

// VendorLinkExpired reports whether the vendor submission link is past its window.
func (q *Quote) VendorLinkExpired(now time.Time) bool {
	return q.ExpiresAt != nil && !now.Before(*q.ExpiresAt)
}

type QuoteSubmission struct {
	Amount      decimal.Decimal
	Description string
	FileName    string
	MimeType    string
}

// SignatureMark is rendered into a quote document on approval.
type SignatureMark struct {
	Role     ApproverRole
	SignedBy string
	SignedAt time.Time
}

// QuoteApproval is what an approval link resolves to.
type QuoteApproval struct {
	Quote *Quote       `json:"quote"`
	Role  ApproverRole `json:"role"`
}

type QuoteOutcome struct {
	Quote             *Quote `json:"quote"`
	NotificationError string `json:"notification_error,omitempty"`
	SignatureError    string `json:"signature_error,omitempty"`
}
