// Command appserver runs the certificate ingestion and extraction pipeline:
// HTTP trigger endpoints, durable queue workers, webhook delivery, SSE
// fan-out and the processing watchdog.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/complianceai/platform/infrastructure/config"
	"github.com/complianceai/platform/infrastructure/database"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/metrics"
	"github.com/complianceai/platform/infrastructure/ratelimit"
	"github.com/complianceai/platform/internal/queue"
	"github.com/complianceai/platform/internal/worker"
	"github.com/complianceai/platform/pkg/blob"
	"github.com/complianceai/platform/services/classification"
	"github.com/complianceai/platform/services/events"
	"github.com/complianceai/platform/services/extraction"
	"github.com/complianceai/platform/services/extraction/ocr"
	"github.com/complianceai/platform/services/extraction/pdftext"
	"github.com/complianceai/platform/services/extraction/vision"
	"github.com/complianceai/platform/services/ingestion"
	"github.com/complianceai/platform/services/reporting"
	"github.com/complianceai/platform/services/watchdog"
	"github.com/complianceai/platform/services/webhookdelivery"
)

func main() {
	log := logging.NewFromEnv("appserver")

	if err := run(log); err != nil {
		log.WithError(err).Fatal("appserver exited")
	}
}

func run(log *logging.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	databaseURL, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		return err
	}

	db, err := database.Connect(ctx, database.DefaultConfig(databaseURL))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	settings := config.LoadFactorySettings(ctx, database.NewSettingsStore(db))
	m := metrics.New("complianceai")

	// Document store: object storage when configured, in-memory otherwise
	// (local development).
	var store blob.Store
	if storageURL := config.Env("STORAGE_URL", ""); storageURL != "" {
		httpStore, err := blob.NewHTTPStore(blob.HTTPConfig{
			BaseURL:    storageURL,
			Bucket:     config.Env("STORAGE_BUCKET", "certificates"),
			ServiceKey: config.Env("STORAGE_SERVICE_KEY", ""),
		})
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		store = httpStore
	} else {
		log.Logger.Warn("STORAGE_URL unset, using in-memory document store")
		store = blob.NewMemoryStore()
	}

	// Extraction tiers. OCR and LLM are optional; the orchestrator records
	// skipped tiers when they are absent.
	textExtractor := pdftext.New(log)

	var ocrClient extraction.OCRClient
	if endpoint := config.Env("DOCUMENT_INTELLIGENCE_ENDPOINT", ""); endpoint != "" {
		client, err := ocr.NewClient(ocr.Config{
			Endpoint: endpoint,
			APIKey:   config.Env("DOCUMENT_INTELLIGENCE_KEY", ""),
		}, log)
		if err != nil {
			return fmt.Errorf("init OCR client: %w", err)
		}
		ocrClient = client
	} else {
		log.Logger.Warn("DOCUMENT_INTELLIGENCE_ENDPOINT unset, OCR tier disabled")
	}

	var visionClient extraction.VisionClient
	if apiKey := config.Env("ANTHROPIC_API_KEY", ""); apiKey != "" {
		client, err := vision.NewClient(vision.Config{
			APIKey:            apiKey,
			Model:             config.Env("ANTHROPIC_MODEL", ""),
			RequestsPerMinute: config.EnvInt("LLM_REQUESTS_PER_MINUTE", 30),
		}, log)
		if err != nil {
			return fmt.Errorf("init vision client: %w", err)
		}
		visionClient = client
	} else {
		log.Logger.Warn("ANTHROPIC_API_KEY unset, vision tier disabled")
	}

	orchestrator := extraction.New(textExtractor, ocrClient, visionClient, log, m)

	hub := events.NewHub(log, m)
	defer hub.Close()

	ingestionRepo := ingestion.NewRepository(db)
	generator := classification.NewGenerator(ingestionRepo, log)
	coordinator := ingestion.NewCoordinator(ingestionRepo, store, orchestrator, generator, hub, log)

	webhookRepo := webhookdelivery.NewRepository(db)

	// Queue runtime.
	qm := queue.New(db, log, m, settings)

	qm.Work(queue.QueueCertificateIngestion, 3, func(ctx context.Context, job *queue.Job) error {
		var payload struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode ingestion payload: %w", err)
		}
		return coordinator.Process(ctx, payload.JobID)
	})

	deliveryWorker := webhookdelivery.NewWorker(webhookRepo, qm, log, m)
	qm.Work(queue.QueueWebhookDelivery, 5, deliveryWorker.HandleJob)

	wd := watchdog.New(db, hub, settings.ProcessingTimeout, log)
	qm.Work(queue.QueueCertificateWatchdog, 1, wd.HandleJob)

	limiter := ratelimit.NewRegistry(ratelimit.DefaultConfig())
	qm.Work(queue.QueueRateLimitCleanup, 1, func(ctx context.Context, _ *queue.Job) error {
		removed := limiter.Cleanup()
		log.WithFields(map[string]interface{}{"removed": removed, "tracked": limiter.Size()}).
			Debug("Rate limiter cleanup")
		return nil
	})

	refresher := reporting.NewRefresher(db, log)
	qm.Work(queue.QueueReportingRefresh, 1, refresher.HandleReportingRefresh)
	qm.Work(queue.QueueScheduledReport, 1, refresher.HandleScheduledReports)
	qm.Work(queue.QueuePatternAnalysis, 1, refresher.HandlePatternAnalysis)
	qm.Work(queue.QueueMVRefresh, 1, refresher.HandleViewRefresh)

	// Cron schedules. All UTC except the materialised-view refresh, which
	// follows the reporting timezone.
	watchdogSpec := fmt.Sprintf("*/%d * * * *", int(settings.WatchdogInterval.Minutes()))
	schedules := []struct {
		queueName string
		spec      string
		timezone  string
		opts      *queue.Options
	}{
		{queue.QueueCertificateWatchdog, watchdogSpec, "", &queue.Options{
			SingletonKey:     watchdog.SingletonKey,
			SingletonSeconds: watchdog.SingletonWindow,
		}},
		{queue.QueueRateLimitCleanup, "*/15 * * * *", "", nil},
		{queue.QueueReportingRefresh, "10 * * * *", "", nil},
		{queue.QueueScheduledReport, "20 6 * * *", "", nil},
		{queue.QueuePatternAnalysis, "40 1 * * *", "", nil},
		{queue.QueueMVRefresh, "50 2 * * *", config.Env("MV_REFRESH_TIMEZONE", "Europe/London"), nil},
	}
	for _, s := range schedules {
		if err := qm.Schedule(s.queueName, s.spec, nil, s.opts, s.timezone); err != nil {
			return fmt.Errorf("schedule %s: %w", s.queueName, err)
		}
	}

	if err := qm.Start(ctx); err != nil {
		return fmt.Errorf("start queue manager: %w", err)
	}
	defer qm.Stop()

	// Background pollers outside the queue: webhook staging and queue depth.
	workers := worker.NewGroup()
	workers.AddFunc("webhook-poller", webhookdelivery.PollInterval, deliveryWorker.Poll)
	workers.AddFunc("queue-depth", 30*time.Second, qm.PublishDepthMetrics)
	if err := workers.Start(ctx); err != nil {
		return fmt.Errorf("start background workers: %w", err)
	}
	defer workers.Stop()

	// HTTP surface.
	router := mux.NewRouter()
	router.Handle("/events", hub).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	handlers := ingestion.NewHandlers(ingestionRepo, qm, webhookRepo, log)
	handlers.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.EnvInt("PORT", 8080)),
		Handler:      limiter.Middleware(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{"addr": server.Addr}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Logger.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	return nil
}
