package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/vendor-onboarding/internal/config"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

const serviceName = "vendor-onboarding-api"

// HTTPMetrics is satisfied by metrics.HTTPServerMetrics.
type HTTPMetrics interface {
	Middleware(service string) func(http.Handler) http.Handler
	Handler() http.Handler
}

type Dependencies struct {
	Access    ports.AccessGate
	Intake    ports.VendorIntake
	Lifecycle ports.Lifecycle
	Quotes    ports.QuoteWorkflow
	Receipts  ports.ReceiptWorkflow
	Audit     ports.AuditTrail
	Reference ports.ReferenceData
	Streets   ports.StreetLookup
	Metrics   HTTPMetrics
}

type Router struct {
	deps   Dependencies
	schema *apiSchema

	jwtSecret       string
	rateLimitRPS    float64
	rateLimitBurst  int
	vendorLimiter   *tokenLimiter
	maxInFlight     int
	backpressureFor time.Duration
	maxUploadBytes  int64
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	schema, err := loadAPISchema()
	if err != nil {
		return nil, err
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Router{
		deps:            deps,
		schema:          schema,
		jwtSecret:       cfg.JWTSecret,
		rateLimitRPS:    cfg.APIRateLimitRPS,
		rateLimitBurst:  cfg.APIRateLimitBurst,
		vendorLimiter:   newTokenLimiter(cfg.VendorRateLimitPerMin),
		maxInFlight:     cfg.APIBackpressureMaxInFlight,
		backpressureFor: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		maxUploadBytes:  maxUpload,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware)
	if rt.deps.Metrics != nil {
		r.Use(rt.deps.Metrics.Middleware(serviceName))
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.serveOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.maxInFlight, rt.backpressureFor)
		})
		r.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.rateLimitRPS, rt.rateLimitBurst)
		})

		r.Route("/v1/reference", func(r chi.Router) {
			r.Get("/cities", rt.listCities)
			r.Get("/banks", rt.listBanks)
			r.Get("/streets", rt.searchStreets)
		})

		r.Route("/v1/vendor/{token}", func(r chi.Router) {
			r.Get("/", rt.vendorStatus)
			r.With(rt.vendorLimiter.middleware).Post("/passcode", rt.issuePasscode)
			r.With(rt.vendorLimiter.middleware).Post("/passcode/verify", rt.verifyPasscode)
			r.Get("/request", rt.vendorRequest)
			r.Patch("/profile", rt.updateProfile)
			r.Put("/documents/{type}", rt.uploadDocument)
			r.Delete("/documents/{type}", rt.deleteDocument)
			r.Get("/autofill", rt.autofill)
			r.Post("/autofill", rt.applyAutofill)
			r.Post("/submit", rt.submit)
			r.Get("/receipts", rt.vendorReceipts)
			r.Post("/receipts", rt.uploadReceipt)
			r.Delete("/receipts/{receiptID}", rt.deleteReceipt)
		})

		r.Route("/v1/quotes", func(r chi.Router) {
			r.Get("/submit/{token}", rt.resolveQuoteSubmission)
			r.Post("/submit/{token}", rt.submitQuote)
			r.Get("/approval/{token}", rt.resolveQuoteApproval)
			r.Post("/approval/{token}/approve", rt.approveQuote)
			r.Post("/approval/{token}/reject", rt.rejectQuote)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(rt.jwtSecret))

			r.Route("/v1/requests", func(r chi.Router) {
				r.Get("/", rt.listRequests)
				r.With(requireRole(RoleHandler)).Post("/", rt.createRequest)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", rt.getRequest)
					r.With(requireRole()).Delete("/", rt.deleteRequest)
					r.With(requireRole(RoleHandler)).Post("/dispatch", rt.dispatchRequest)
					r.Post("/gates/{gate}", rt.decideGate)
					r.With(requireRole(RoleHandler)).Post("/resend", rt.resendRequest)
					r.With(requireRole(RoleHandler)).Post("/reject", rt.rejectRequest)
					r.With(requireRole(RoleHandler)).Put("/contract", rt.uploadContract)
					r.Get("/history", rt.requestHistory)
					r.Get("/quotes", rt.listQuotes)
					r.With(requireRole(RoleHandler)).Post("/quotes", rt.requestQuote)
					r.With(requireRole(RoleHandler)).Put("/quotes", rt.uploadQuote)
					r.Get("/receipts", rt.listReceipts)
					r.With(requireRole(RoleHandler)).Post("/receipts/link", rt.sendReceiptsLink)
				})
			})
			r.With(requireRole(RoleHandler)).Post("/v1/receipts/{receiptID}/decision", rt.decideReceipt)
			r.With(requireRole(RoleHandler)).Post("/v1/reminders/expiry", rt.sendExpiryReminders)
		})
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (rt *Router) listCities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cities": rt.deps.Reference.Cities()})
}

func (rt *Router) listBanks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"banks": rt.deps.Reference.Banks()})
}

func (rt *Router) searchStreets(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Streets == nil {
		writeJSON(w, http.StatusOK, map[string]any{"streets": []string{}})
		return
	}
	streets, err := rt.deps.Streets.Search(r.Context(), r.URL.Query().Get("city"), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, fmt.Errorf("search streets: %w", err))
		return
	}
	if streets == nil {
		streets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"streets": streets})
}
