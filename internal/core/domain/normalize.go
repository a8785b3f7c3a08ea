package domain

import (
	"strings"
	"unicode"
)

// DigitsOnly strips every non-digit rune.
func DigitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripSeparators removes whitespace and common phone separators.
func StripSeparators(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		switch r {
		case '-', '.', '(', ')', '/', '+':
			return -1
		}
		return r
	}, value)
}

// NormalizeExtracted cleans raw extraction output. Values that cannot be
// salvaged become empty so the reconciler treats them as missing.
func NormalizeExtracted(raw ExtractedFields) ExtractedFields {
	out := ExtractedFields{
		CompanyName:  strings.TrimSpace(raw.CompanyName),
		City:         strings.TrimSpace(raw.City),
		Street:       strings.TrimSpace(raw.Street),
		StreetNumber: strings.TrimSpace(raw.StreetNumber),
		Notes:        strings.TrimSpace(raw.Notes),
		Model:        raw.Model,
	}

	if id := DigitsOnly(raw.CompanyID); len(id) >= 8 && len(id) <= 9 {
		out.CompanyID = id
	}

	out.Phone = normalizePhone(raw.Phone)
	out.Mobile = normalizePhone(raw.Mobile)
	out.Fax = normalizePhone(raw.Fax)
	if out.Mobile != "" && !strings.HasPrefix(out.Mobile, "05") {
		if out.Phone == "" {
			out.Phone = out.Mobile
		}
		out.Mobile = ""
	}

	if email := strings.TrimSpace(raw.Email); strings.Contains(email, "@") {
		out.Email = strings.ToLower(email)
	}

	if postal := DigitsOnly(raw.PostalCode); len(postal) == 7 {
		out.PostalCode = postal
	}

	if bank := DigitsOnly(raw.BankNumber); bank != "" && len(bank) <= 2 {
		if len(bank) == 1 {
			bank = "0" + bank
		}
		out.BankNumber = bank
	}
	if branch := DigitsOnly(raw.BranchNumber); len(branch) >= 3 && len(branch) <= 4 {
		out.BranchNumber = branch
	}
	if account := DigitsOnly(raw.AccountNumber); len(account) >= 6 && len(account) <= 9 {
		out.AccountNumber = account
	}

	switch Confidence(strings.ToLower(strings.TrimSpace(string(raw.Confidence)))) {
	case ConfidenceHigh:
		out.Confidence = ConfidenceHigh
	case ConfidenceMedium:
		out.Confidence = ConfidenceMedium
	default:
		out.Confidence = ConfidenceLow
	}
	return out
}

func normalizePhone(value string) string {
	digits := DigitsOnly(value)
	if len(digits) == 9 && !strings.HasPrefix(digits, "0") {
		digits = "0" + digits
	}
	if len(digits) < 9 || len(digits) > 10 {
		return ""
	}
	return digits
}
