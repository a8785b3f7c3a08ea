package domain

import "strings"

type FieldName string

const (
	FieldCompanyID              FieldName = "company_id"
	FieldCompanyName            FieldName = "company_name"
	FieldPhone                  FieldName = "phone"
	FieldMobile                 FieldName = "mobile"
	FieldFax                    FieldName = "fax"
	FieldEmail                  FieldName = "email"
	FieldStreet                 FieldName = "street"
	FieldStreetNumber           FieldName = "street_number"
	FieldCity                   FieldName = "city"
	FieldPostalCode             FieldName = "postal_code"
	FieldPOBox                  FieldName = "po_box"
	FieldAccountingContactName  FieldName = "accounting_contact_name"
	FieldAccountingContactPhone FieldName = "accounting_contact_phone"
	FieldSalesContactName       FieldName = "sales_contact_name"
	FieldSalesContactPhone      FieldName = "sales_contact_phone"
	FieldBankName               FieldName = "bank_name"
	FieldBankBranch             FieldName = "bank_branch"
	FieldBankAccount            FieldName = "bank_account"
	FieldPaymentMethod          FieldName = "payment_method"
	FieldPaymentTerms           FieldName = "payment_terms"
)

// ProfileFieldNames lists the closed profile field set in display order.
var ProfileFieldNames = []FieldName{
	FieldCompanyID, FieldCompanyName, FieldPhone, FieldMobile, FieldFax, FieldEmail,
	FieldStreet, FieldStreetNumber, FieldCity, FieldPostalCode, FieldPOBox,
	FieldAccountingContactName, FieldAccountingContactPhone,
	FieldSalesContactName, FieldSalesContactPhone,
	FieldBankName, FieldBankBranch, FieldBankAccount,
	FieldPaymentMethod, FieldPaymentTerms,
}

func (f FieldName) Known() bool {
	for _, name := range ProfileFieldNames {
		if name == f {
			return true
		}
	}
	return false
}

// IsBankField reports fields that prefer the bank confirmation document.
func (f FieldName) IsBankField() bool {
	return f == FieldBankName || f == FieldBankBranch || f == FieldBankAccount
}

type PaymentMethod string

const (
	PaymentCheck    PaymentMethod = "check"
	PaymentInvoice  PaymentMethod = "invoice"
	PaymentTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCheck || m == PaymentInvoice || m == PaymentTransfer
}

// ProfileFields is the vendor-editable part of a request.
type ProfileFields struct {
	CompanyID              string `json:"company_id"`
	CompanyName            string `json:"company_name"`
	Phone                  string `json:"phone"`
	Mobile                 string `json:"mobile"`
	Fax                    string `json:"fax"`
	Email                  string `json:"email"`
	Street                 string `json:"street"`
	StreetNumber           string `json:"street_number"`
	City                   string `json:"city"`
	PostalCode             string `json:"postal_code"`
	POBox                  string `json:"po_box"`
	AccountingContactName  string `json:"accounting_contact_name"`
	AccountingContactPhone string `json:"accounting_contact_phone"`
	SalesContactName       string `json:"sales_contact_name"`
	SalesContactPhone      string `json:"sales_contact_phone"`
	BankName               string `json:"bank_name"`
	BankBranch             string `json:"bank_branch"`
	BankAccount            string `json:"bank_account"`
	PaymentMethod          string `json:"payment_method"`
	PaymentTerms           string `json:"payment_terms"`
}

func (p *ProfileFields) field(name FieldName) *string {
	switch name {
	case FieldCompanyID:
		return &p.CompanyID
	case FieldCompanyName:
		return &p.CompanyName
	case FieldPhone:
		return &p.Phone
	case FieldMobile:
		return &p.Mobile
	case FieldFax:
		return &p.Fax
	case FieldEmail:
		return &p.Email
	case FieldStreet:
		return &p.Street
	case FieldStreetNumber:
		return &p.StreetNumber
	case FieldCity:
		return &p.City
	case FieldPostalCode:
		return &p.PostalCode
	case FieldPOBox:
		return &p.POBox
	case FieldAccountingContactName:
		return &p.AccountingContactName
	case FieldAccountingContactPhone:
		return &p.AccountingContactPhone
	case FieldSalesContactName:
		return &p.SalesContactName
	case FieldSalesContactPhone:
		return &p.SalesContactPhone
	case FieldBankName:
		return &p.BankName
	case FieldBankBranch:
		return &p.BankBranch
	case FieldBankAccount:
		return &p.BankAccount
	case FieldPaymentMethod:
		return &p.PaymentMethod
	case FieldPaymentTerms:
		return &p.PaymentTerms
	default:
		return nil
	}
}

func (p ProfileFields) Get(name FieldName) string {
	ptr := p.field(name)
	if ptr == nil {
		return ""
	}
	return *ptr
}

// Set assigns a trimmed value; it reports false for names outside the closed set.
func (p *ProfileFields) Set(name FieldName, value string) bool {
	ptr := p.field(name)
	if ptr == nil {
		return false
	}
	*ptr = strings.TrimSpace(value)
	return true
}

// ApplyPatch validates every key before touching the profile.
func (p *ProfileFields) ApplyPatch(patch map[FieldName]string) error {
	unknown := make(map[FieldName]string)
	for name := range patch {
		if !name.Known() {
			unknown[name] = "unknown field"
		}
	}
	if len(unknown) > 0 {
		return NewValidationError(unknown)
	}
	for name, value := range patch {
		p.Set(name, value)
	}
	return nil
}

// Merge copies non-empty candidate values; onlyEmpty keeps existing vendor input.
func (p *ProfileFields) Merge(candidate ProfileFields, onlyEmpty bool) []FieldName {
	var changed []FieldName
	for _, name := range ProfileFieldNames {
		value := candidate.Get(name)
		if value == "" {
			continue
		}
		current := p.Get(name)
		if onlyEmpty && current != "" {
			continue
		}
		if current == value {
			continue
		}
		p.Set(name, value)
		changed = append(changed, name)
	}
	return changed
}

// Warning flags a suspicious value without correcting it.
type Warning struct {
	Field          FieldName `json:"field"`
	ExtractedValue string    `json:"extracted_value"`
	Message        string    `json:"message"`
}

type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is the single displayed message for a field.
type Issue struct {
	Field    FieldName     `json:"field"`
	Severity IssueSeverity `json:"severity"`
	Value    string        `json:"value,omitempty"`
	Message  string        `json:"message"`
}
