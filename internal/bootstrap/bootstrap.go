package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/vendor-onboarding/internal/config"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
	"github.com/kirillkom/vendor-onboarding/internal/core/usecase"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/extractor/doctext"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/queue/nats"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/reference"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/reference/nominatim"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/resilience"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/signing/pdfanchor"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/storage/s3store"
)

// Observers carries the metric sinks of the binary being started. Both may be nil.
type Observers struct {
	Domain       ports.Observer
	Dependencies resilience.Observer
}

type App struct {
	Config config.Config

	Queue     ports.EventQueue
	Reference ports.ReferenceData
	Streets   ports.StreetLookup

	Access    *usecase.AccessGateUseCase
	Intake    *usecase.VendorIntakeUseCase
	Lifecycle *usecase.LifecycleUseCase
	Quotes    *usecase.QuoteUseCase
	Receipts  *usecase.ReceiptUseCase
	Audit     *usecase.AuditTrailUseCase
	Extract   *usecase.ExtractDocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, obs Observers) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(policyFromConfig(cfg))
	if obs.Dependencies != nil {
		executor = executor.WithObserver(obs.Dependencies)
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Options{
		ConnectTimeout: cfg.NATSConnectTimeout,
		Executor:       executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	queue := nats.NewUploadQueue(conn, cfg.NATSSubject)
	notifier := nats.NewNotifier(conn, cfg.NATSNotifyPrefix)

	directory, err := reference.Load()
	if err != nil {
		conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	streets := nominatim.New(cfg.NominatimURL, cfg.NominatimTimeout, nominatim.WithExecutor(executor))

	requests := postgres.NewVendorRequestRepository(db)
	documents := postgres.NewDocumentRepository(db)
	history := postgres.NewHistoryRepository(db)
	quotes := postgres.NewQuoteRepository(db)
	receipts := postgres.NewReceiptRepository(db)

	extractor := ollama.NewFieldExtractor(
		ollama.New(cfg.OllamaURL, cfg.OllamaTimeout, executor),
		cfg.OllamaFastModel,
		cfg.OllamaAccurateModel,
	)
	reader := doctext.NewReader(storage, cfg.MaxUploadBytes)
	signer := pdfanchor.NewSigner(storage)

	var opts []usecase.Option
	if obs.Domain != nil {
		opts = append(opts, usecase.WithObserver(obs.Domain))
	}
	links := usecase.Links{BaseURL: cfg.PublicBaseURL}
	validator := usecase.NewValidator(directory, streets)

	app := &App{
		Config:    cfg,
		Queue:     queue,
		Reference: directory,
		Streets:   streets,

		Access: usecase.NewAccessGateUseCase(requests, documents, notifier, links, cfg.PasscodeTTL(), opts...),
		Intake: usecase.NewVendorIntakeUseCase(requests, documents, storage, queue, validator, directory, notifier, links, opts...),
		Lifecycle: usecase.NewLifecycleUseCase(requests, documents, quotes, receipts, storage, notifier, usecase.LifecycleSettings{
			DefaultLinkValidity: cfg.LinkValidity(),
			VPEmail:             cfg.VPEmail,
			ProcurementEmail:    cfg.ProcurementEmail,
			Links:               links,
		}, opts...),
		Quotes: usecase.NewQuoteUseCase(quotes, requests, storage, signer, notifier, usecase.QuoteSettings{
			LinkValidity:     cfg.QuoteLinkValidity(),
			VPEmail:          cfg.VPEmail,
			ProcurementEmail: cfg.ProcurementEmail,
			Links:            links,
		}, opts...),
		Receipts: usecase.NewReceiptUseCase(receipts, requests, storage, notifier, usecase.ReceiptSettings{
			LinkValidity: cfg.LinkValidity(),
			Links:        links,
		}, opts...),
		Audit:   usecase.NewAuditTrailUseCase(requests, history),
		Extract: usecase.NewExtractDocumentUseCase(documents, reader, extractor),

		closeFn: func() {
			conn.Close()
			_ = db.Close()
		},
	}
	return app, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "", "local":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case "minio", "s3":
		slog.Info("object_storage_selected", "backend", "minio", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
		storage, err := s3store.New(ctx, s3store.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func policyFromConfig(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = cfg.ResilienceMaxAttempts
	policy.InitialBackoff = cfg.ResilienceInitialBackoff
	policy.MaxBackoff = cfg.ResilienceMaxBackoff
	policy.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		policy.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	policy.BreakerFailureRatio = cfg.ResilienceBreakerFailRatio
	policy.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return policy
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

