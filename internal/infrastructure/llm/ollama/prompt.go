package ollama

import (
	"strings"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

const maxTextSnippet = 6000

const basePrompt = `You are an OCR specialist extracting vendor details from Israeli business documents.
Scan the whole document: header, body, footer, corners and stamps. Hebrew text reads right to left.
If text is blurred, infer from context and position.

Fields:
company_id - ח.פ / ע.מ / עוסק מורשה, 9 digits
company_name - business name
phone - landline, starts with 0 but not 05
mobile - mobile number, starts with 05, 10 digits
fax - fax number
email - email address
city - city or settlement
street - street name without the house number
street_number - house number
postal_code - 7 digit postal code
bank_number - 2 digit bank code (10 Leumi, 11 Discount, 12 Hapoalim, 20 Mizrahi Tefahot, 31 Beinleumi)
branch_number - 3-4 digit branch
account_number - 6-9 digit account`

var documentHints = map[domain.DocumentType]string{
	domain.DocBookkeepingCert: `This is a bookkeeping certificate. The title carries the business name and id,
the body the full address, the stamp or footer the phone, fax and email.`,
	domain.DocTaxCert: `This is a withholding tax certificate. The top carries the taxpayer name and id,
rows or a table list address and contact details. Bank details may appear for refunds.`,
	domain.DocBankConfirmation: `This is a bank account confirmation or a cheque. On a cheque the bottom dashed line
holds bank, branch and account numbers. Do not confuse the branch address with the business address.`,
	domain.DocInvoiceScreenshot: `This is an invoice or receipt. The header carries the business name, logo and id,
the footer or side the address, phone, fax and email. Transfer bank details may appear.`,
}

const responseFormat = `Reply with a single JSON object and nothing else:
{"company_id": "...", "company_name": "...", "phone": "...", "mobile": "...", "fax": "...", "email": "...",
 "city": "...", "street": "...", "street_number": "...", "postal_code": "...",
 "bank_number": "...", "branch_number": "...", "account_number": "...",
 "confidence": "high|medium|low", "notes": "recognition quality remarks"}
Use null for any field you cannot read.`

func buildExtractionPrompt(docType domain.DocumentType, text string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if hint, ok := documentHints[docType]; ok {
		b.WriteString("\n\n")
		b.WriteString(hint)
	}
	b.WriteString("\n\n")
	b.WriteString(responseFormat)

	if text != "" {
		snippet := text
		if len(snippet) > maxTextSnippet {
			snippet = snippet[:maxTextSnippet]
		}
		b.WriteString("\n\nDocument text (")
		b.WriteString(string(docType))
		b.WriteString("):\n")
		b.WriteString(snippet)
	} else {
		b.WriteString("\n\nThe document (")
		b.WriteString(string(docType))
		b.WriteString(") is attached as an image. Check every region of it.")
	}
	return b.String()
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
