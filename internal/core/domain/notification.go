package domain

type NotificationTemplate string

const (
	NotifyVendorInvitation       NotificationTemplate = "vendor_invitation"
	NotifyVendorPasscode         NotificationTemplate = "vendor_passcode"
	NotifyVendorResent           NotificationTemplate = "vendor_resent"
	NotifyVendorRejected         NotificationTemplate = "vendor_rejected"
	NotifyVendorApproved         NotificationTemplate = "vendor_approved"
	NotifyExpiryReminder         NotificationTemplate = "expiry_reminder"
	NotifyHandlerSubmitted       NotificationTemplate = "handler_submitted"
	NotifyVPApprovalRequested    NotificationTemplate = "vp_approval_requested"
	NotifyProcurementApproval    NotificationTemplate = "procurement_approval_requested"
	NotifyQuoteRequested         NotificationTemplate = "quote_requested"
	NotifyQuoteApprovalRequested NotificationTemplate = "quote_approval_requested"
	NotifyQuoteDecided           NotificationTemplate = "quote_decided"
	NotifyReceiptsLink           NotificationTemplate = "receipts_link"
	NotifyReceiptStatus          NotificationTemplate = "receipt_status"
)

// Notification is a single outbound message for the mail service.
type Notification struct {
	Template  NotificationTemplate `json:"template"`
	Recipient string               `json:"recipient"`
	Data      map[string]string    `json:"data"`
}
