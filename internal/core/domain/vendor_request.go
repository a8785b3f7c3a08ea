package domain

import "time"

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestWithVendor RequestStatus = "with_vendor"
	RequestResent     RequestStatus = "resent"
	RequestSubmitted  RequestStatus = "submitted"
	RequestApproved   RequestStatus = "approved"
	RequestRejected   RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestWithVendor, RequestResent, RequestSubmitted, RequestApproved, RequestRejected:
		return true
	default:
		return false
	}
}

// VendorEditable reports whether the vendor may still change profile and documents.
func (s RequestStatus) VendorEditable() bool {
	return s == RequestPending || s == RequestWithVendor || s == RequestResent
}

func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

type GateName string

const (
	GateFirstReview        GateName = "first_review"
	GateVP                 GateName = "vp"
	GateProcurementManager GateName = "procurement_manager"
)

func (g GateName) Valid() bool {
	return g == GateFirstReview || g == GateVP || g == GateProcurementManager
}

// Gate is a tri-state approval checkpoint: nil Approved means pending.
type Gate struct {
	Approved *bool      `json:"approved"`
	At       *time.Time `json:"approved_at"`
	By       string     `json:"approved_by,omitempty"`
}

func (g Gate) Pending() bool { return g.Approved == nil }

func (g Gate) IsApproved() bool { return g.Approved != nil && *g.Approved }

func (g Gate) IsRejected() bool { return g.Approved != nil && !*g.Approved }

// Decide records a decision on a pending gate. The caller checks Pending first.
func (g *Gate) Decide(approved bool, by string, at time.Time) {
	value := approved
	ts := at
	g.Approved = &value
	g.At = &ts
	g.By = by
}

type RequestFlags struct {
	RequiresVPApproval        bool `json:"requires_vp_approval"`
	RequiresContractSignature bool `json:"requires_contract_signature"`
	SkipManagerApproval       bool `json:"skip_manager_approval"`
}

type VendorRequest struct {
	ID           string        `json:"id"`
	Status       RequestStatus `json:"status"`
	SecureToken  string        `json:"secure_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	LinkValidity time.Duration `json:"-"`

	OTPVerified  bool       `json:"otp_verified"`
	OTPCodeHash  string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	VendorName   string `json:"vendor_name"`
	VendorEmail  string `json:"vendor_email"`
	HandlerName  string `json:"handler_name,omitempty"`
	HandlerEmail string `json:"handler_email,omitempty"`

	Profile  ProfileFields `json:"profile"`
	Warnings []Warning     `json:"warnings"`

	FirstReview        Gate `json:"first_review"`
	VP                 Gate `json:"vp"`
	ProcurementManager Gate `json:"procurement_manager"`

	RequestFlags

	ContractFilePath       string     `json:"contract_file_path,omitempty"`
	HandlerRejectionReason string     `json:"handler_rejection_reason,omitempty"`
	ReminderSentAt         *time.Time `json:"reminder_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the access link is no longer valid at now.
func (r *VendorRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *VendorRequest) Gate(name GateName) *Gate {
	switch name {
	case GateFirstReview:
		return &r.FirstReview
	case GateVP:
		return &r.VP
	case GateProcurementManager:
		return &r.ProcurementManager
	default:
		return nil
	}
}

// ApprovalComplete reports whether every required gate is true.
func (r *VendorRequest) ApprovalComplete() bool {
	if !r.FirstReview.IsApproved() {
		return false
	}
	if r.SkipManagerApproval {
		return true
	}
	if r.RequiresVPApproval && !r.VP.IsApproved() {
		return false
	}
	return r.ProcurementManager.IsApproved()
}

// ClearPasscode drops any stored code and the verified flag.
func (r *VendorRequest) ClearPasscode() {
	r.OTPVerified = false
	r.OTPCodeHash = ""
	r.OTPExpiresAt = nil
}

// NewRequest is the internal creation command.
type NewRequest struct {
	VendorName   string
	VendorEmail  string
	HandlerName  string
	HandlerEmail string
	Flags        RequestFlags
	LinkValidity time.Duration
	Dispatch     bool
}

type ListFilter struct {
	Status RequestStatus
	Limit  int
}

// Mutation tells the repository how to audit a change applied under lock.
type Mutation struct {
	Actor string
	Note  string
	// At is when the change happened; the repository clock is used when zero.
	At time.Time
	// Record forces a history entry even when the status did not change.
	Record bool
}

// RequestOutcome is returned by every mutating lifecycle operation.
type RequestOutcome struct {
	Request           *VendorRequest `json:"request"`
	NotificationError string         `json:"notification_error,omitempty"`
}

// VendorStatusView is the passcode-free status lookup by token.
type VendorStatusView struct {
	VendorName string        `json:"vendor_name"`
	Status     RequestStatus `json:"status"`
	Expired    bool          `json:"expired"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

type PasscodeIssue struct {
	MaskedEmail     string `json:"masked_email"`
	AlreadyVerified bool   `json:"already_verified"`
}

type ReminderReport struct {
	Reminded []string `json:"reminded"`
	Failed   []string `json:"failed"`
	// Skipped requests changed between listing and locking.
	Skipped []string `json:"skipped"`
}
