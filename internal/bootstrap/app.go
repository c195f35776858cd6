package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"assessment-backend/internal/export"
	"assessment-backend/internal/jobs"
	"assessment-backend/internal/llm"
	openai "assessment-backend/internal/llm/openai"
	"assessment-backend/internal/queue"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/server"
	"assessment-backend/internal/shared/storage/db"
	"assessment-backend/internal/shared/storage/object"
	localstore "assessment-backend/internal/shared/storage/object/local"
	s3store "assessment-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies for the API server and the queue worker.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	Store         object.ObjectStore
	Queue         queue.Client
	JobsRepo      jobs.Repo
	JobsService   *jobs.Service
	JobProcessor  JobProcessor
	JobsHandler   *jobs.Handler
	ExportService *export.Service
	ExportHandler *export.Handler
}

// JobProcessor allows callers to override job processing for tests.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:        app.Config,
		JobsHandler:   app.JobsHandler,
		ExportHandler: app.ExportHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context) (queue.Client, error) {
	if strings.TrimSpace(os.Getenv("JOB_SQS_QUEUE_URL")) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	var repo jobs.Repo
	if app.DB != nil {
		repo = &jobs.PGRepo{DB: app.DB}
	} else {
		repo = jobs.NewMemoryRepo()
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if app.Config.LLMProvider == "openai" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), app.Config.LLMModel)
		if err != nil {
			if !isDevLike(app.Config.Env) {
				return err
			}
			log.Printf("bootstrap: openai unavailable; using placeholder llm: %v", err)
		} else {
			llmClient = openaiClient
		}
	}

	jobsSvc := &jobs.Service{
		Repo:     repo,
		LLM:      llmClient,
		JobQueue: app.Queue,
		Provider: app.Config.LLMProvider,
		Model:    app.Config.LLMModel,
	}

	exportSvc := &export.Service{Store: app.Store}

	app.JobsRepo = repo
	app.JobsService = jobsSvc
	app.JobProcessor = jobsSvc
	app.JobsHandler = jobs.NewHandler(jobsSvc)
	app.ExportService = exportSvc
	app.ExportHandler = export.NewHandler(exportSvc)

	return nil
}
