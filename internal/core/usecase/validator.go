package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

var (
	mobilePattern = regexp.MustCompile(`^05\d{8}$`)
	branchPattern = regexp.MustCompile(`^\d{3,4}$`)
)

const (
	minAccountDigits = 6
	maxAccountDigits = 9
	companyIDDigits  = 9
)

// Validator checks candidate and profile values against reference data.
// It only flags values; it never rewrites them.
type Validator struct {
	reference ports.ReferenceData
	streets   ports.StreetLookup
}

func NewValidator(reference ports.ReferenceData, streets ports.StreetLookup) *Validator {
	return &Validator{reference: reference, streets: streets}
}

// Validate returns warnings for non-empty candidate values, in field order.
func (v *Validator) Validate(ctx context.Context, fields domain.ProfileFields) []domain.Warning {
	var warnings []domain.Warning
	warn := func(field domain.FieldName, message string) {
		warnings = append(warnings, domain.Warning{
			Field:          field,
			ExtractedValue: fields.Get(field),
			Message:        message,
		})
	}

	if value := fields.CompanyID; value != "" {
		if digits := domain.DigitsOnly(value); len(digits) != companyIDDigits {
			warn(domain.FieldCompanyID, fmt.Sprintf("company id must have exactly %d digits, found %d", companyIDDigits, len(digits)))
		}
	}

	if value := fields.Mobile; value != "" && !mobilePattern.MatchString(domain.StripSeparators(value)) {
		warn(domain.FieldMobile, "mobile number must look like 05XXXXXXXX")
	}

	if value := fields.City; value != "" && !v.cityKnown(value) {
		warn(domain.FieldCity, "city was not found in the city list")
	}

	if fields.Street != "" && fields.City != "" && v.streets != nil {
		if known, ok := v.streetKnown(ctx, fields.City, fields.Street); ok && !known {
			warn(domain.FieldStreet, fmt.Sprintf("street was not found in %s", fields.City))
		}
	}

	bank, bankKnown := domain.Bank{}, false
	if value := fields.BankName; value != "" {
		bank, bankKnown = v.reference.BankByName(strings.TrimSpace(value))
		if !bankKnown {
			warn(domain.FieldBankName, "bank was not found in the bank list")
		}
	}

	if value := fields.BankBranch; value != "" {
		branch := domain.DigitsOnly(value)
		switch {
		case !branchPattern.MatchString(branch):
			warn(domain.FieldBankBranch, "branch number must have 3 or 4 digits")
		case bankKnown && !bank.HasBranch(branch):
			warn(domain.FieldBankBranch, fmt.Sprintf("branch %s is not a known branch of %s", branch, bank.Name))
		}
	}

	if value := fields.BankAccount; value != "" {
		if message := accountDigitsMessage(domain.DigitsOnly(value), bank, bankKnown); message != "" {
			warn(domain.FieldBankAccount, message)
		}
	}

	return warnings
}

// HardErrors are the required-field checks that block submission.
func (v *Validator) HardErrors(p domain.ProfileFields) map[domain.FieldName]string {
	errs := make(map[domain.FieldName]string)

	switch digits := domain.DigitsOnly(p.CompanyID); {
	case strings.TrimSpace(p.CompanyID) == "":
		errs[domain.FieldCompanyID] = "company id is required"
	case len(digits) != companyIDDigits:
		errs[domain.FieldCompanyID] = fmt.Sprintf("company id must be exactly %d digits", companyIDDigits)
	}

	switch {
	case strings.TrimSpace(p.Mobile) == "":
		errs[domain.FieldMobile] = "mobile number is required"
	case !mobilePattern.MatchString(domain.StripSeparators(p.Mobile)):
		errs[domain.FieldMobile] = "mobile number must be 10 digits starting with 05"
	}

	if strings.TrimSpace(p.City) == "" {
		errs[domain.FieldCity] = "city is required"
	}
	if strings.TrimSpace(p.Street) == "" && strings.TrimSpace(p.POBox) == "" {
		errs[domain.FieldStreet] = "street address or PO box is required"
	}

	bank, bankKnown := domain.Bank{}, false
	if strings.TrimSpace(p.BankName) == "" {
		errs[domain.FieldBankName] = "bank name is required"
	} else {
		bank, bankKnown = v.reference.BankByName(strings.TrimSpace(p.BankName))
	}

	switch {
	case strings.TrimSpace(p.BankBranch) == "":
		errs[domain.FieldBankBranch] = "branch number is required"
	case !branchPattern.MatchString(domain.DigitsOnly(p.BankBranch)):
		errs[domain.FieldBankBranch] = "branch number must have 3 or 4 digits"
	}

	if strings.TrimSpace(p.BankAccount) == "" {
		errs[domain.FieldBankAccount] = "account number is required"
	} else if message := accountDigitsMessage(domain.DigitsOnly(p.BankAccount), bank, bankKnown); message != "" {
		errs[domain.FieldBankAccount] = message
	}

	if !domain.PaymentMethod(p.PaymentMethod).Valid() {
		errs[domain.FieldPaymentMethod] = "payment method must be one of check, invoice, transfer"
	}

	return errs
}

func accountDigitsMessage(digits string, bank domain.Bank, bankKnown bool) string {
	if len(digits) < minAccountDigits || len(digits) > maxAccountDigits {
		return fmt.Sprintf("account number must have %d to %d digits", minAccountDigits, maxAccountDigits)
	}
	if bankKnown && bank.AccountDigits > 0 && len(digits) != bank.AccountDigits {
		return fmt.Sprintf("account number at %s must have %d digits", bank.Name, bank.AccountDigits)
	}
	return ""
}

// cityKnown accepts an exact name or a fragment of a known name, so "תל אביב"
// matches "תל אביב - יפו" but free text wrapping a city name does not.
func (v *Validator) cityKnown(city string) bool {
	city = strings.TrimSpace(city)
	if city == "" {
		return false
	}
	for _, known := range v.reference.Cities() {
		if known == city || strings.Contains(known, city) {
			return true
		}
	}
	return false
}

// streetKnown reports ok=false when the lookup is unavailable.
func (v *Validator) streetKnown(ctx context.Context, city, street string) (known bool, ok bool) {
	results, err := v.streets.Search(ctx, city, street)
	if err != nil {
		slog.Warn("street_lookup_failed", "city", city, "error", err)
		return false, false
	}
	needle := normalizeStreet(street)
	for _, candidate := range results {
		name := normalizeStreet(candidate)
		if name == needle || strings.Contains(name, needle) || strings.Contains(needle, name) {
			return true, true
		}
	}
	return false, true
}

func normalizeStreet(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// Consolidate reports one issue per field; a hard error replaces the warning.
func Consolidate(warnings []domain.Warning, hard map[domain.FieldName]string) []domain.Issue {
	byField := make(map[domain.FieldName]domain.Warning, len(warnings))
	for _, w := range warnings {
		if _, seen := byField[w.Field]; !seen {
			byField[w.Field] = w
		}
	}

	var issues []domain.Issue
	for _, field := range domain.ProfileFieldNames {
		w, hasWarning := byField[field]
		message, hasError := hard[field]
		switch {
		case hasError:
			issues = append(issues, domain.Issue{Field: field, Severity: domain.SeverityError, Value: w.ExtractedValue, Message: message})
		case hasWarning:
			issues = append(issues, domain.Issue{Field: field, Severity: domain.SeverityWarning, Value: w.ExtractedValue, Message: w.Message})
		}
	}
	return issues
}

// ClearWarnings drops warnings for fields the vendor just edited.
func ClearWarnings(warnings []domain.Warning, edited []domain.FieldName) []domain.Warning {
	if len(warnings) == 0 || len(edited) == 0 {
		return warnings
	}
	skip := make(map[domain.FieldName]struct{}, len(edited))
	for _, field := range edited {
		skip[field] = struct{}{}
	}
	out := make([]domain.Warning, 0, len(warnings))
	for _, w := range warnings {
		if _, ok := skip[w.Field]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}
