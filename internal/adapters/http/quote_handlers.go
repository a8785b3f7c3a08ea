package httpadapter

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

func (rt *Router) listQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := rt.deps.Quotes.ListForRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if quotes == nil {
		quotes = []domain.Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (rt *Router) requestQuote(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.deps.Quotes.RequestQuote(r.Context(), chi.URLParam(r, "id"), currentActor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// parseQuoteForm reads the multipart quote upload; the caller closes the returned file.
func (rt *Router) parseQuoteForm(w http.ResponseWriter, r *http.Request) (domain.QuoteSubmission, io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.QuoteSubmission{}, nil, domain.FieldError("file", missingFileMessage)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		_ = file.Close()
		return domain.QuoteSubmission{}, nil, domain.FieldError("amount", "amount must be a decimal number")
	}
	return domain.QuoteSubmission{
		Amount:      amount,
		Description: strings.TrimSpace(r.FormValue("description")),
		FileName:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
	}, file, nil
}

func (rt *Router) uploadQuote(w http.ResponseWriter, r *http.Request) {
	submission, file, err := rt.parseQuoteForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	outcome, err := rt.deps.Quotes.UploadQuote(r.Context(), chi.URLParam(r, "id"), currentActor(r), submission, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (rt *Router) resolveQuoteSubmission(w http.ResponseWriter, r *http.Request) {
	quote, err := rt.deps.Quotes.ResolveSubmission(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (rt *Router) submitQuote(w http.ResponseWriter, r *http.Request) {
	submission, file, err := rt.parseQuoteForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	outcome, err := rt.deps.Quotes.SubmitQuote(r.Context(), chi.URLParam(r, "token"), submission, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) resolveQuoteApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := rt.deps.Quotes.ResolveApproval(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// quoteDecision carries an optional display name; the gate comes from the token.
type quoteDecision struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (rt *Router) decodeQuoteDecision(r *http.Request) (quoteDecision, error) {
	var body quoteDecision
	if err := rt.schema.decode(r, "QuoteDecision", &body); err != nil {
		return quoteDecision{}, err
	}
	body.Name = strings.TrimSpace(body.Name)
	return body, nil
}

func (rt *Router) approveQuote(w http.ResponseWriter, r *http.Request) {
	body, err := rt.decodeQuoteDecision(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Quotes.Approve(r.Context(), chi.URLParam(r, "token"), body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) rejectQuote(w http.ResponseWriter, r *http.Request) {
	body, err := rt.decodeQuoteDecision(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Quotes.Reject(r.Context(), chi.URLParam(r, "token"), body.Name, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
