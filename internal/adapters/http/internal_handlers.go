package httpadapter

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

const defaultReminderWindow = 48 * time.Hour

func currentActor(r *http.Request) string {
	actor, _ := actorFromContext(r.Context())
	return actor.Name
}

func (rt *Router) createRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VendorName                string `json:"vendor_name"`
		VendorEmail               string `json:"vendor_email"`
		HandlerName               string `json:"handler_name"`
		HandlerEmail              string `json:"handler_email"`
		RequiresVPApproval        bool   `json:"requires_vp_approval"`
		RequiresContractSignature bool   `json:"requires_contract_signature"`
		SkipManagerApproval       bool   `json:"skip_manager_approval"`
		LinkValidityHours         int    `json:"link_validity_hours"`
		Dispatch                  bool   `json:"dispatch"`
	}
	if err := rt.schema.decode(r, "CreateRequest", &body); err != nil {
		writeError(w, r, err)
		return
	}

	handlerName := body.HandlerName
	if handlerName == "" {
		handlerName = currentActor(r)
	}
	outcome, err := rt.deps.Lifecycle.Create(r.Context(), currentActor(r), domain.NewRequest{
		VendorName:   body.VendorName,
		VendorEmail:  body.VendorEmail,
		HandlerName:  handlerName,
		HandlerEmail: body.HandlerEmail,
		Flags: domain.RequestFlags{
			RequiresVPApproval:        body.RequiresVPApproval,
			RequiresContractSignature: body.RequiresContractSignature,
			SkipManagerApproval:       body.SkipManagerApproval,
		},
		LinkValidity: time.Duration(body.LinkValidityHours) * time.Hour,
		Dispatch:     body.Dispatch,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

func (rt *Router) listRequests(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{Status: domain.RequestStatus(r.URL.Query().Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, domain.FieldError("status", fmt.Sprintf("unknown status %q", filter.Status)))
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, domain.FieldError("limit", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	requests, err := rt.deps.Lifecycle.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []domain.VendorRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (rt *Router) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := rt.deps.Lifecycle.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (rt *Router) deleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Lifecycle.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) dispatchRequest(w http.ResponseWriter, r *http.Request) {
	outcome, err := rt.deps.Lifecycle.Dispatch(r.Context(), chi.URLParam(r, "id"), currentActor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) decideGate(w http.ResponseWriter, r *http.Request) {
	gate := domain.GateName(chi.URLParam(r, "gate"))
	if !gate.Valid() {
		writeError(w, r, domain.FieldError("gate", fmt.Sprintf("unknown gate %q", gate)))
		return
	}
	actor, _ := actorFromContext(r.Context())
	if !mayDecideGate(actor, gate) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Detail: "role " + actor.Role + " may not decide gate " + string(gate)})
		return
	}

	var body struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := rt.schema.decode(r, "GateDecision", &body); err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Lifecycle.DecideGate(r.Context(), chi.URLParam(r, "id"), gate, actor.Name, body.Approve, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) decodeReason(r *http.Request) (string, error) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := rt.schema.decode(r, "Reason", &body); err != nil {
		return "", err
	}
	return body.Reason, nil
}

func (rt *Router) resendRequest(w http.ResponseWriter, r *http.Request) {
	reason, err := rt.decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Lifecycle.Resend(r.Context(), chi.URLParam(r, "id"), currentActor(r), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) rejectRequest(w http.ResponseWriter, r *http.Request) {
	reason, err := rt.decodeReason(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	outcome, err := rt.deps.Lifecycle.Reject(r.Context(), chi.URLParam(r, "id"), currentActor(r), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) uploadContract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.FieldError("file", missingFileMessage))
		return
	}
	defer file.Close()

	outcome, err := rt.deps.Lifecycle.UploadContract(r.Context(), chi.URLParam(r, "id"), currentActor(r), header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) requestHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.deps.Audit.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.StatusHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (rt *Router) sendExpiryReminders(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WithinHours int `json:"within_hours"`
	}
	if err := rt.schema.decode(r, "ReminderRun", &body); err != nil {
		writeError(w, r, err)
		return
	}
	within := defaultReminderWindow
	if body.WithinHours > 0 {
		within = time.Duration(body.WithinHours) * time.Hour
	}
	report, err := rt.deps.Lifecycle.SendExpiryReminders(r.Context(), within)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const missingFileMessage = "multipart field 'file' is required"
