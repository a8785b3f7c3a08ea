package domain

import "testing"

func TestNormalizeExtracted(t *testing.T) {
	got := NormalizeExtracted(ExtractedFields{
		CompanyID:     "12345678",
		Phone:         "",
		Mobile:        "03-1234567",
		Email:         " Office@Acme.TEST ",
		PostalCode:    "12345",
		BankNumber:    "123",
		BranchNumber:  "80",
		AccountNumber: "123-456789",
		Confidence:    "Medium",
	})

	if got.CompanyID != "12345678" {
		t.Fatalf("company id must not be padded, got %q", got.CompanyID)
	}
	if got.Mobile != "" || got.Phone != "031234567" {
		t.Fatalf("landline in mobile must move to phone, got mobile=%q phone=%q", got.Mobile, got.Phone)
	}
	if got.Email != "office@acme.test" {
		t.Fatalf("unexpected email %q", got.Email)
	}
	if got.PostalCode != "" || got.BankNumber != "" || got.BranchNumber != "" {
		t.Fatalf("invalid lengths must drop, got %+v", got)
	}
	if got.AccountNumber != "123456789" {
		t.Fatalf("unexpected account %q", got.AccountNumber)
	}
	if got.Confidence != ConfidenceMedium {
		t.Fatalf("unexpected confidence %q", got.Confidence)
	}
}

func TestNormalizeExtractedDefaults(t *testing.T) {
	got := NormalizeExtracted(ExtractedFields{Email: "not-an-email", Confidence: "certain"})
	if got.Email != "" {
		t.Fatalf("email without @ must drop, got %q", got.Email)
	}
	if got.Confidence != ConfidenceLow {
		t.Fatalf("unknown confidence defaults to low, got %q", got.Confidence)
	}
	if got.FilledCount() != 0 {
		t.Fatalf("expected no filled fields, got %d", got.FilledCount())
	}
}

func TestStripSeparators(t *testing.T) {
	if got := StripSeparators("+972 (52) 123-45.67"); got != "972521234567" {
		t.Fatalf("unexpected %q", got)
	}
}
