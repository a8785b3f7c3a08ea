package httpadapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

func (rt *Router) vendorStatus(w http.ResponseWriter, r *http.Request) {
	view, err := rt.deps.Access.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) issuePasscode(w http.ResponseWriter, r *http.Request) {
	issue, err := rt.deps.Access.IssuePasscode(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (rt *Router) verifyPasscode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := rt.schema.decode(r, "PasscodeVerify", &body); err != nil {
		writeError(w, r, err)
		return
	}
	if err := rt.deps.Access.VerifyPasscode(r.Context(), chi.URLParam(r, "token"), body.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type vendorWorkspace struct {
	Request   *domain.VendorRequest   `json:"request"`
	Documents []domain.VendorDocument `json:"documents"`
}

func (rt *Router) vendorRequest(w http.ResponseWriter, r *http.Request) {
	req, docs, err := rt.deps.Access.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !req.OTPVerified {
		writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "vendor request", errors.New("passcode not verified")))
		return
	}
	if docs == nil {
		docs = []domain.VendorDocument{}
	}
	writeJSON(w, http.StatusOK, vendorWorkspace{Request: req, Documents: docs})
}

func (rt *Router) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch map[domain.FieldName]string
	if err := rt.schema.decode(r, "ProfilePatch", &patch); err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Intake.UpdateProfile(r.Context(), chi.URLParam(r, "token"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	docType := domain.DocumentType(chi.URLParam(r, "type"))
	if !docType.Valid() {
		writeError(w, r, domain.FieldError("document_type", fmt.Sprintf("unknown document type %q", docType)))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.FieldError("file", missingFileMessage))
		return
	}
	defer file.Close()

	doc, err := rt.deps.Intake.UploadDocument(
		r.Context(),
		chi.URLParam(r, "token"),
		docType,
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	docType := domain.DocumentType(chi.URLParam(r, "type"))
	if !docType.Valid() {
		writeError(w, r, domain.FieldError("document_type", fmt.Sprintf("unknown document type %q", docType)))
		return
	}
	if err := rt.deps.Intake.DeleteDocument(r.Context(), chi.URLParam(r, "token"), docType); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) autofill(w http.ResponseWriter, r *http.Request) {
	result, err := rt.deps.Intake.Autofill(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) applyAutofill(w http.ResponseWriter, r *http.Request) {
	body := struct {
		OnlyEmpty *bool `json:"only_empty"`
	}{}
	if err := rt.schema.decode(r, "ApplyAutofill", &body); err != nil {
		writeError(w, r, err)
		return
	}
	onlyEmpty := true
	if body.OnlyEmpty != nil {
		onlyEmpty = *body.OnlyEmpty
	}
	outcome, err := rt.deps.Intake.ApplyAutofill(r.Context(), chi.URLParam(r, "token"), onlyEmpty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Patch               map[domain.FieldName]string `json:"patch"`
		AcknowledgeWarnings bool                        `json:"acknowledge_warnings"`
	}
	if err := rt.schema.decode(r, "Submit", &body); err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Intake.Submit(r.Context(), chi.URLParam(r, "token"), domain.SubmitInput{
		Patch:               body.Patch,
		AcknowledgeWarnings: body.AcknowledgeWarnings,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
