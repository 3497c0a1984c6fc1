package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/donation-market/internal/config"
	"github.com/iliyamo/donation-market/internal/database"
)

var (
	// Global flags
	envFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "donactl",
	Short: "Operator tasks for the donation market",
	Long: `donactl reads the same environment as the API server (DB_DRIVER,
DB_* or DB_PATH, PASSWORD_PEPPER, ADDRESS_API_URL) and runs one-off tasks:
applying the schema, importing cities and creating administrators.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load(envFile)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with environment variables, ignored when missing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// openDB loads the storage configuration, connects and applies the schema.
func openDB(ctx context.Context) (*sql.DB, config.Config, error) {
	cfg := config.LoadStorage()
	if verbose {
		Muted("driver=%s", cfg.DBDriver)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("connect: %w", err)
	}
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		_ = db.Close()
		return nil, cfg, err
	}
	return db, cfg, nil
}
