package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"go.etcd.io/bbolt"

	"github.com/mscno/safereport/pkg/assistant"
	"github.com/mscno/safereport/pkg/classify"
	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/pkg/session"
	"github.com/mscno/safereport/pkg/upload"
	"github.com/mscno/safereport/server"
	"github.com/mscno/safereport/server/middleware"
	"github.com/mscno/safereport/server/stores"
)

const shutdownTimeout = 15 * time.Second

// ServeCmd runs the API server until SIGINT or SIGTERM.
type ServeCmd struct {
	Addr string `env:"SAFEREPORT_ADDR" default:":8080" help:"Listen address."`

	Store             string `env:"SAFEREPORT_STORE" default:"memory" enum:"memory,bolt,datastore,mongo" help:"Persistence backend."`
	BoltPath          string `env:"SAFEREPORT_BOLT_PATH" default:"safereport.db" help:"bbolt database file."`
	DatastoreProject  string `env:"SAFEREPORT_DATASTORE_PROJECT" help:"Google Cloud project for Datastore."`
	DatastoreDatabase string `env:"SAFEREPORT_DATASTORE_DATABASE" help:"Datastore database id. Empty selects the default database."`
	MongoURI          string `env:"SAFEREPORT_MONGO_URI" default:"mongodb://localhost:27017" help:"MongoDB connection string."`
	MongoDatabase     string `env:"SAFEREPORT_MONGO_DATABASE" default:"safereport" help:"MongoDB database name."`

	JWTSecret string `env:"SAFEREPORT_JWT_SECRET" required:"" help:"HMAC secret used to validate session tokens."`

	ClassifierURL          string        `env:"SAFEREPORT_CLASSIFIER_URL" help:"Remote classifier endpoint. Empty uses the local keyword classifier only."`
	ClassifierTimeout      time.Duration `env:"SAFEREPORT_CLASSIFIER_TIMEOUT" default:"10s" help:"Remote classification bound."`
	ClassifierTokenURL     string        `env:"SAFEREPORT_CLASSIFIER_TOKEN_URL" help:"OAuth2 token endpoint for the classifier."`
	ClassifierClientID     string        `env:"SAFEREPORT_CLASSIFIER_CLIENT_ID" help:"OAuth2 client id for the classifier."`
	ClassifierClientSecret string        `env:"SAFEREPORT_CLASSIFIER_CLIENT_SECRET" help:"OAuth2 client secret for the classifier."`
	ClassifierScopes       []string      `env:"SAFEREPORT_CLASSIFIER_SCOPES" help:"OAuth2 scopes for the classifier."`

	StorageBucket      string        `env:"SAFEREPORT_STORAGE_BUCKET" help:"Cloud Storage bucket for evidence. Empty or placeholder values keep evidence local."`
	StorageCredentials string        `env:"SAFEREPORT_STORAGE_CREDENTIALS" help:"Service account credentials file."`
	StoragePublicURL   string        `env:"SAFEREPORT_STORAGE_PUBLIC_URL" help:"Base URL for stored objects."`
	StorageTimeout     time.Duration `env:"SAFEREPORT_STORAGE_TIMEOUT" default:"30s" help:"Per-upload bound."`
	EvidenceFolder     string        `env:"SAFEREPORT_EVIDENCE_FOLDER" default:"evidence" help:"Object folder for attachments."`
	UploadConcurrency  int           `env:"SAFEREPORT_UPLOAD_CONCURRENCY" default:"4" help:"Concurrent uploads per submission."`
	MaxFileBytes       int64         `env:"SAFEREPORT_MAX_FILE_BYTES" default:"10485760" help:"Largest accepted attachment."`
	MaxTotalBytes      int64         `env:"SAFEREPORT_MAX_TOTAL_BYTES" default:"52428800" help:"Largest accepted attachment total per report."`

	AssistantURL     string        `env:"SAFEREPORT_ASSISTANT_URL" help:"Chat assistant endpoint. Empty answers with canned replies."`
	AssistantAPIKey  string        `env:"SAFEREPORT_ASSISTANT_API_KEY" help:"Bearer key for the assistant."`
	AssistantTimeout time.Duration `env:"SAFEREPORT_ASSISTANT_TIMEOUT" default:"15s" help:"Assistant call bound."`

	RateEvery   time.Duration `env:"SAFEREPORT_RATE_EVERY" default:"500ms" help:"Refill interval of the per-client bucket on submission and chat."`
	RateBurst   int           `env:"SAFEREPORT_RATE_BURST" default:"10" help:"Per-client burst on submission and chat."`
	CORSOrigins []string      `env:"SAFEREPORT_CORS_ORIGINS" help:"Allowed CORS origins. Empty allows all."`

	ArchiveAfter    time.Duration `env:"SAFEREPORT_ARCHIVE_AFTER" default:"0s" help:"Archive resolved reports after this age. Zero disables the job."`
	ArchiveSchedule string        `env:"SAFEREPORT_ARCHIVE_SCHEDULE" default:"@hourly" help:"Cron schedule of the archive sweep."`
}

func (c *ServeCmd) Run(ctx *cliCtx) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.serve(sigCtx, ctx.Logger)
}

// serve blocks until ctx is done or the listener fails.
func (c *ServeCmd) serve(ctx context.Context, logger *slog.Logger) error {
	reportStore, profileStore, closeStores, err := c.openStores(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStores(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	classifier, err := c.classifier(ctx, logger)
	if err != nil {
		return err
	}
	storer, closeStorage, err := c.storage(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStorage()
	chat, err := c.assistant(logger)
	if err != nil {
		return err
	}

	signer, err := session.NewSigner(c.JWTSecret, 0)
	if err != nil {
		return err
	}

	ingestor := evidence.NewIngestor(storer, logger, evidence.WithFolder(c.EvidenceFolder), evidence.WithConcurrency(c.UploadConcurrency))
	reports := server.NewReportService(reportStore, profileStore, classifier, ingestor, logger)
	orgs := server.NewOrganizationService(profileStore, logger)
	h := server.NewHandler(reports, orgs, chat, server.Limits{MaxFileBytes: c.MaxFileBytes, MaxTotalBytes: c.MaxTotalBytes}, logger)

	srv, limiter := server.NewAPIServer(h, middleware.SessionValidator(signer), server.APIOptions{
		Addr:           c.Addr,
		AllowedOrigins: c.CORSOrigins,
		RateEvery:      c.RateEvery,
		RateBurst:      c.RateBurst,
	}, logger)
	defer limiter.Stop()

	if c.ArchiveAfter > 0 {
		archiver, err := server.NewArchiver(reports, c.ArchiveSchedule, c.ArchiveAfter, logger)
		if err != nil {
			return err
		}
		archiver.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			archiver.Stop(sctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func (c *ServeCmd) openStores(ctx context.Context, logger *slog.Logger) (stores.ReportStore, stores.OrganizationStore, func() error, error) {
	switch c.Store {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return stores.NewReportMemoryStore(), stores.NewOrganizationMemoryStore(), func() error { return nil }, nil
	case "bolt":
		db, err := bbolt.Open(c.BoltPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open bolt database %s: %w", c.BoltPath, err)
		}
		logger.Info("using bolt store", "path", c.BoltPath)
		return stores.NewReportBoltStore(db), stores.NewOrganizationBoltStore(db), db.Close, nil
	case "datastore":
		if c.DatastoreProject == "" {
			return nil, nil, nil, errors.New("--datastore-project is required for the datastore backend")
		}
		client, err := datastore.NewClientWithDatabase(ctx, c.DatastoreProject, c.DatastoreDatabase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create datastore client: %w", err)
		}
		logger.Info("using datastore store", "project", c.DatastoreProject, "database", c.DatastoreDatabase)
		return stores.NewReportDataStore(logger, client), stores.NewOrganizationDataStore(logger, client), client.Close, nil
	case "mongo":
		client, err := stores.ConnectMongo(ctx, c.MongoURI, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		db := client.Database(c.MongoDatabase)
		if err := stores.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return stores.NewReportMongoStore(logger, db), stores.NewOrganizationMongoStore(logger, db), closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q", c.Store)
	}
}

func (c *ServeCmd) classifier(ctx context.Context, logger *slog.Logger) (*classify.Gateway, error) {
	if c.ClassifierURL == "" {
		logger.Info("remote classifier not configured, using local keyword classifier")
		return classify.NewGateway(nil, c.ClassifierTimeout, logger), nil
	}
	rc, err := classify.NewRemoteClassifier(ctx, classify.RemoteConfig{
		URL:          c.ClassifierURL,
		TokenURL:     c.ClassifierTokenURL,
		ClientID:     c.ClassifierClientID,
		ClientSecret: c.ClassifierClientSecret,
		Scopes:       c.ClassifierScopes,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return classify.NewGateway(rc, c.ClassifierTimeout, logger), nil
}

func (c *ServeCmd) storage(ctx context.Context, logger *slog.Logger) (*upload.Gateway, func(), error) {
	config := upload.Config{
		Bucket:          c.StorageBucket,
		CredentialsFile: c.StorageCredentials,
		PublicBaseURL:   c.StoragePublicURL,
	}
	if !config.Configured() {
		return upload.NewGateway(nil, c.StorageTimeout, logger), func() {}, nil
	}
	uploader, err := upload.NewGCSUploader(ctx, config, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("storing evidence in cloud storage", "bucket", config.Bucket)
	closeFn := func() {
		if err := uploader.Close(); err != nil {
			logger.Error("failed to close storage client", "error", err)
		}
	}
	return upload.NewGateway(uploader, c.StorageTimeout, logger), closeFn, nil
}

func (c *ServeCmd) assistant(logger *slog.Logger) (*assistant.Service, error) {
	if c.AssistantURL == "" {
		return assistant.NewService(nil, c.AssistantTimeout, logger), nil
	}
	remote, err := assistant.NewHTTPRemote(c.AssistantURL, c.AssistantAPIKey)
	if err != nil {
		return nil, err
	}
	return assistant.NewService(remote, c.AssistantTimeout, logger), nil
}
