package domain

import "time"

type DocumentType string

const (
	DocBookkeepingCert   DocumentType = "bookkeeping_cert"
	DocTaxCert           DocumentType = "tax_cert"
	DocBankConfirmation  DocumentType = "bank_confirmation"
	DocInvoiceScreenshot DocumentType = "invoice_screenshot"
)

// RequiredDocumentTypes must all be present before submit.
var RequiredDocumentTypes = []DocumentType{
	DocBookkeepingCert,
	DocTaxCert,
	DocBankConfirmation,
	DocInvoiceScreenshot,
}

func (t DocumentType) Valid() bool {
	for _, known := range RequiredDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

type VendorDocument struct {
	ID            string           `json:"id"`
	RequestID     string           `json:"request_id"`
	DocumentType  DocumentType     `json:"document_type"`
	FileName      string           `json:"file_name"`
	FilePath      string           `json:"file_path"`
	MimeType      string           `json:"mime_type"`
	ExtractedTags *ExtractedFields `json:"extracted_tags"`
	UploadedAt    time.Time        `json:"uploaded_at"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ExtractedFields is the normalised output of the extraction service for one document.
type ExtractedFields struct {
	CompanyID     string     `json:"company_id,omitempty"`
	CompanyName   string     `json:"company_name,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Mobile        string     `json:"mobile,omitempty"`
	Fax           string     `json:"fax,omitempty"`
	Email         string     `json:"email,omitempty"`
	City          string     `json:"city,omitempty"`
	Street        string     `json:"street,omitempty"`
	StreetNumber  string     `json:"street_number,omitempty"`
	PostalCode    string     `json:"postal_code,omitempty"`
	BankNumber    string     `json:"bank_number,omitempty"`
	BranchNumber  string     `json:"branch_number,omitempty"`
	AccountNumber string     `json:"account_number,omitempty"`
	Confidence    Confidence `json:"confidence,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Model         string     `json:"model,omitempty"`
}

// FilledCount counts populated data fields, ignoring metadata.
func (e ExtractedFields) FilledCount() int {
	n := 0
	for _, v := range []string{
		e.CompanyID, e.CompanyName, e.Phone, e.Mobile, e.Fax, e.Email, e.City, e.Street,
		e.StreetNumber, e.PostalCode, e.BankNumber, e.BranchNumber, e.AccountNumber,
	} {
		if v != "" {
			n++
		}
	}
	return n
}

// ExtractionInput is what the extraction service receives for one document.
type ExtractionInput struct {
	Text     string
	Image    []byte
	MimeType string
}

func (in ExtractionInput) Empty() bool {
	return in.Text == "" && len(in.Image) == 0
}

// Candidate is the reconciled autofill proposal; it never aliases the profile.
type Candidate struct {
	Fields  ProfileFields              `json:"fields"`
	Sources map[FieldName]DocumentType `json:"sources"`
}

type AutofillResult struct {
	Candidate Candidate `json:"candidate"`
	Warnings  []Warning `json:"warnings"`
	Issues    []Issue   `json:"issues"`
}

// SubmitInput carries the final vendor corrections.
type SubmitInput struct {
	Patch               map[FieldName]string
	AcknowledgeWarnings bool
}
