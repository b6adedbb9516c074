package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mandi/backend/internal/infrastructure/migration"
)

func newMigrateCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "path", "migrations", "Migrations directory")

	open := func() (*migration.Migrator, error) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		cfg, err := e.config()
		if err != nil {
			return nil, err
		}
		m, err := migration.Open(&cfg.Database, abs, e.logger())
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = m.Close() })
		return m, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			if err := m.Up(); err != nil {
				return err
			}
			return printStatus(e, m)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending files",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			return printStatus(e, m)
		},
	}

	cmd.AddCommand(up, status)
	return cmd
}

func printStatus(e *env, m *migration.Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "version %d (latest %d)", st.Version, st.Latest)
	if st.Dirty {
		fmt.Fprint(e.out, " DIRTY")
	}
	fmt.Fprintln(e.out)
	for _, p := range st.Pending {
		fmt.Fprintf(e.out, "  pending %s\n", p)
	}
	return nil
}
