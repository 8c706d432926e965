package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ashmitsharp/homeledger-api/internal/config"
	"github.com/ashmitsharp/homeledger-api/internal/database"
	"github.com/ashmitsharp/homeledger-api/internal/logger"
)

// NewRootCommand creates the ledgerctl command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Import bank statements into the household ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newPreviewCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newRulesCommand())

	return rootCmd
}

// session is the configuration and database a command runs against
type session struct {
	cfg   *config.Config
	log   zerolog.Logger
	pool  *pgxpool.Pool
	store *database.Store
}

func openSession(ctx context.Context, stderr io.Writer) (*session, error) {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: stderr}).Level(logger.ParseLevel(cfg.LogLevel))

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &session{
		cfg:   cfg,
		log:   log,
		pool:  pool,
		store: database.NewStore(pool),
	}, nil
}

func (s *session) Close() {
	s.pool.Close()
}
