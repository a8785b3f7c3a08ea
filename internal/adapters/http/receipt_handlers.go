package httpadapter

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

func (rt *Router) vendorReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := rt.deps.Receipts.VendorReceipts(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (rt *Router) uploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.FieldError("file", missingFileMessage))
		return
	}
	defer file.Close()

	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		writeError(w, r, domain.FieldError("amount", "amount must be a decimal number"))
		return
	}
	date, err := time.Parse(domain.ReceiptDateLayout, strings.TrimSpace(r.FormValue("receipt_date")))
	if err != nil {
		writeError(w, r, domain.FieldError("receipt_date", "receipt date must be YYYY-MM-DD"))
		return
	}

	receipt, err := rt.deps.Receipts.UploadReceipt(r.Context(), chi.URLParam(r, "token"), domain.ReceiptUpload{
		Amount:      amount,
		ReceiptDate: date,
		Description: r.FormValue("description"),
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
	}, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (rt *Router) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Receipts.DeleteReceipt(r.Context(), chi.URLParam(r, "token"), chi.URLParam(r, "receiptID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := rt.deps.Receipts.ListForRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (rt *Router) sendReceiptsLink(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.deps.Receipts.SendLink(r.Context(), chi.URLParam(r, "id"), currentActor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) decideReceipt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := rt.schema.decode(r, "ReceiptDecision", &body); err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Receipts.Decide(r.Context(), chi.URLParam(r, "receiptID"), currentActor(r), body.Approve, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
