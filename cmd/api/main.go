package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ashmitsharp/homeledger-api/internal/config"
	"github.com/ashmitsharp/homeledger-api/internal/database"
	"github.com/ashmitsharp/homeledger-api/internal/handlers"
	"github.com/ashmitsharp/homeledger-api/internal/logger"
	"github.com/ashmitsharp/homeledger-api/internal/middleware"
	"github.com/ashmitsharp/homeledger-api/internal/services"
	"github.com/ashmitsharp/homeledger-api/internal/utils"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.Warn().Msg(".env file not found, using system environment variables")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	store := database.NewStore(pool)
	log.Info().Msg("connected to database")

	// Rules
	rules, err := services.LoadRuleSet(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	categorizer := services.NewCategorizer(rules, cfg.RulesFile)
	log.Info().Str("version", rules.Version).Int("rules", len(rules.Rules)).Msg("rules loaded")

	// Import pipeline
	parser := services.NewParser(cfg.DefaultLocation)
	importer := services.NewImporter(store, parser, categorizer)
	withholdings := services.NewWithholdingService(store)
	validator := services.NewFileValidator(cfg.MaxUploadBytes)

	// Statement archive is optional
	var storage handlers.StatementStorage
	if cfg.StorageEnabled() {
		s3Storage, err := services.NewStorageService(ctx, cfg.S3Bucket, cfg.S3Region, cfg.AWSEndpoint)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		storage = s3Storage
		log.Info().Str("bucket", cfg.S3Bucket).Msg("statement archive enabled")
	}

	app := newApp(cfg, log, appDeps{
		importer:     importer,
		storage:      storage,
		validator:    validator,
		rules:        categorizer,
		batches:      store,
		ledger:       store,
		withholdings: withholdings,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("homeledger API listening")
	return app.Listen(fmt.Sprintf(":%d", cfg.Port), fiber.ListenConfig{DisableStartupMessage: true})
}

type appDeps struct {
	importer     handlers.Importer
	storage      handlers.StatementStorage
	validator    *services.FileValidator
	rules        handlers.RuleSource
	batches      handlers.BatchReader
	ledger       handlers.LedgerStore
	withholdings handlers.Withholdings
}

func newApp(cfg *config.Config, log zerolog.Logger, deps appDeps) *fiber.App {
	importHandler := handlers.NewImportHandler(deps.importer, deps.storage, deps.validator)
	batchHandler := handlers.NewBatchHandler(deps.batches)
	ledgerHandler := handlers.NewLedgerHandler(deps.ledger, deps.withholdings)
	withholdingHandler := handlers.NewWithholdingHandler(deps.withholdings)
	rulesHandler := handlers.NewRulesHandler(deps.rules, deps.importer)

	app := fiber.New(fiber.Config{
		AppName:      "homeledger API",
		ErrorHandler: utils.ErrorHandler,
		// Multipart overhead on top of the largest accepted statement
		BodyLimit: int(cfg.MaxUploadBytes) + 1024*1024,
	})

	// Apply global middleware
	app.Use(middleware.RequestLogger(log))
	app.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check endpoint (public)
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "homeledger-api",
		})
	})

	// Protected routes (require authentication)
	v1 := app.Group("/v1", middleware.ClerkAuth(cfg))

	// Import workflow
	v1.Get("/imports/presigned-url", importHandler.GetPresignedURL)
	v1.Post("/imports/preview", importHandler.Preview)
	v1.Post("/imports/commit", importHandler.Commit)
	v1.Get("/imports/batches", batchHandler.ListBatches)
	v1.Get("/imports/batches/:id", batchHandler.GetBatch)

	// Review form choices
	v1.Get("/categories", ledgerHandler.ListCategories)
	v1.Get("/income-categories", ledgerHandler.ListIncomeCategories)
	v1.Get("/bank-accounts", ledgerHandler.ListBankAccounts)
	v1.Post("/bank-accounts", ledgerHandler.CreateBankAccount)

	// Withholding buckets
	v1.Get("/withholdings", withholdingHandler.ListWithholdings)
	v1.Get("/withholdings/:id", withholdingHandler.GetWithholding)
	v1.Post("/withholdings/:id/transactions", withholdingHandler.RecordTransaction)

	// Classification rules
	v1.Get("/rules", rulesHandler.GetRules)
	v1.Post("/rules/classify", rulesHandler.Classify)
	v1.Post("/rules/reload", rulesHandler.ReloadRules)

	return app
}
