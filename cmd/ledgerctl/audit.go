package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/persistence"
	"github.com/mandi/backend/internal/infrastructure/storage"
)

// errDriftFound makes --fail-on-drift exit non-zero
var errDriftFound = errors.New("balance drift found")

func newAuditCmd(e *env) *cobra.Command {
	var (
		tenant      string
		archive     bool
		failOnDrift bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare stored party balances with their outstanding invoices",
		Example: `  ledgerctl audit --tenant 6f1c2a9e-0000-4000-8000-000000000001
  ledgerctl audit --tenant <id> --archive --fail-on-drift`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			db, err := e.database()
			if err != nil {
				return err
			}

			var opts []ledgerapp.AuditOption
			if archive {
				a, err := e.reportArchive(cmd)
				if err != nil {
					return err
				}
				opts = append(opts, ledgerapp.WithArchive(a))
			}
			svc := ledgerapp.NewAuditService(persistence.NewGormLedgerProjection(db), opts...)

			ctx := logger.WithContext(cmd.Context(), e.logger())
			report, err := svc.Run(ctx, tenantID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printAuditReport(e, report)
			}
			if failOnDrift && !report.Clean() {
				return errDriftFound
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID to audit")
	cmd.Flags().BoolVar(&archive, "archive", false, "Store the report in the configured bucket")
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "Exit non-zero when any balance drifted")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// reportArchive returns the injected archive or connects to the configured bucket
func (e *env) reportArchive(cmd *cobra.Command) (ledgerapp.ReportArchive, error) {
	if e.archive != nil {
		return e.archive, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, errors.New("--archive needs storage.enabled=true")
	}
	s3, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(e.logger()))
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(cmd.Context()); err != nil {
		return nil, err
	}
	e.archive = s3
	return s3, nil
}

func printAuditReport(e *env, report *ledgerapp.AuditReport) {
	fmt.Fprintf(e.out, "tenant %s audited at %s\n", report.TenantID, report.GeneratedAt.Format("2006-01-02 15:04:05Z"))
	if report.Clean() {
		fmt.Fprintln(e.out, "all party balances match their invoices")
	} else {
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tPARTY\tNAME\tRECORDED\tOUTSTANDING\tDRIFT")
		for _, d := range report.Drifts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				d.PartyKind, d.PartyID, d.Name,
				d.Recorded.StringFixed(2), d.Outstanding.StringFixed(2), d.Drift.StringFixed(2))
		}
		_ = tw.Flush()
	}
	if report.Location != "" {
		fmt.Fprintf(e.out, "report stored at %s\n", report.Location)
	}
}
