package usecase

import (
	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

var (
	generalPriority = []domain.DocumentType{
		domain.DocBookkeepingCert,
		domain.DocTaxCert,
		domain.DocInvoiceScreenshot,
		domain.DocBankConfirmation,
	}
	bankPriority = []domain.DocumentType{
		domain.DocBankConfirmation,
		domain.DocBookkeepingCert,
		domain.DocTaxCert,
		domain.DocInvoiceScreenshot,
	}
)

type bankDirectory interface {
	BankByCode(code string) (domain.Bank, bool)
}

// Reconcile merges per-document extraction results into one candidate.
// It recomputes from scratch on every call and is deterministic for the same input.
func Reconcile(docs []domain.VendorDocument, banks bankDirectory) domain.Candidate {
	byType := make(map[domain.DocumentType]domain.ProfileFields, len(docs))
	latest := make(map[domain.DocumentType]domain.VendorDocument, len(docs))
	for _, doc := range docs {
		if prev, ok := latest[doc.DocumentType]; ok && prev.UploadedAt.After(doc.UploadedAt) {
			continue
		}
		latest[doc.DocumentType] = doc
	}
	for docType, doc := range latest {
		if doc.ExtractedTags == nil {
			continue
		}
		byType[docType] = candidateFields(*doc.ExtractedTags, banks)
	}

	candidate := domain.Candidate{Sources: make(map[domain.FieldName]domain.DocumentType)}
	for _, field := range domain.ProfileFieldNames {
		order := generalPriority
		if field.IsBankField() {
			order = bankPriority
		}
		for _, docType := range order {
			fields, ok := byType[docType]
			if !ok {
				continue
			}
			if value := fields.Get(field); value != "" {
				candidate.Fields.Set(field, value)
				candidate.Sources[field] = docType
				break
			}
		}
	}
	return candidate
}

func candidateFields(tags domain.ExtractedFields, banks bankDirectory) domain.ProfileFields {
	out := domain.ProfileFields{
		CompanyID:    tags.CompanyID,
		CompanyName:  tags.CompanyName,
		Phone:        tags.Phone,
		Mobile:       tags.Mobile,
		Fax:          tags.Fax,
		Email:        tags.Email,
		City:         tags.City,
		Street:       tags.Street,
		StreetNumber: tags.StreetNumber,
		PostalCode:   tags.PostalCode,
		BankBranch:   tags.BranchNumber,
		BankAccount:  tags.AccountNumber,
	}
	if code := tags.BankNumber; code != "" {
		if bank, ok := lookupBank(banks, code); ok {
			out.BankName = bank.Name
		} else {
			out.BankName = "בנק " + code
		}
	}
	return out
}

func lookupBank(banks bankDirectory, code string) (domain.Bank, bool) {
	if banks == nil {
		return domain.Bank{}, false
	}
	return banks.BankByCode(code)
}
