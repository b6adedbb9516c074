// Command ledgerctl runs operator tasks against the ledger database:
// balance audits, outbox maintenance, migrations and token issuance.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/infrastructure/config"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/persistence"
)

var version = "dev"

func main() {
	e := &env{}
	err := newRootCmd(e).Execute()
	e.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env holds what subcommands share. Tests inject db and archive; everything
// else is loaded lazily from configuration. The caller closes it after Execute.
type env struct {
	configPaths []string
	logLevel    string

	out     io.Writer
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	archive ledgerapp.ReportArchive

	closers []func()
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.configPaths...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *env) logger() *zap.Logger {
	if e.log == nil {
		return zap.NewNop()
	}
	return e.log
}

// database opens the configured database once per invocation
func (e *env) database() (*gorm.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	db, err := persistence.NewDatabase(&cfg.Database, e.logger(), logger.MapGormLogLevel(cfg.Log.GormLog))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	e.db = db.DB
	e.closers = append(e.closers, func() { _ = db.Close() })
	return e.db, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
	if e.log != nil {
		_ = e.log.Sync()
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tools for the mandi payment ledger",
		Long: `ledgerctl works directly against the ledger database.

Configuration is read the same way as the server: MANDI_* environment
variables, .env, config.toml and built-in defaults.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if e.out == nil {
				e.out = cmd.OutOrStdout()
			}
			if e.log != nil {
				return nil
			}
			log, err := logger.New(&logger.Config{
				Level:      e.logLevel,
				Format:     "console",
				Output:     "stderr",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			e.log = log
			return nil
		},
	}

	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringSliceVar(&e.configPaths, "config-dir", e.configPaths, "Directories searched for config.toml")

	root.AddCommand(
		newAuditCmd(e),
		newOutboxCmd(e),
		newMigrateCmd(e),
		newTokenCmd(e),
	)
	return root
}
