package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appevent "github.com/mandi/backend/internal/application/event"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/persistence"
)

// The CLI acts across tenants; uuid.Nil lifts the tenant filter.
var allTenants = uuid.Nil

func newOutboxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and requeue outbox entries",
	}

	service := func() (*appevent.OutboxService, error) {
		db, err := e.database()
		if err != nil {
			return nil, err
		}
		return appevent.NewOutboxService(persistence.NewGormOutboxRepository(db)), nil
	}

	var page, pageSize int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead letter entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), e.logger())
			res, err := svc.GetDeadLetterEntries(ctx, allTenants, appevent.OutboxFilter{Page: page, PageSize: pageSize})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTENANT\tEVENT\tRETRIES\tLAST ERROR")
			for _, entry := range res.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					entry.ID, entry.TenantID, entry.EventType, entry.RetryCount, entry.LastError)
			}
			_ = tw.Flush()
			fmt.Fprintf(e.out, "page %d of %d, %d dead\n", res.Page, max(res.TotalPages, 1), res.Total)
			return nil
		},
	}
	dead.Flags().IntVar(&page, "page", 1, "Page number")
	dead.Flags().IntVar(&pageSize, "page-size", 20, "Entries per page (max 100)")

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue one dead letter entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id: %w", err)
			}
			svc, err := service()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), e.logger())
			entry, err := svc.RetryDeadEntry(ctx, allTenants, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "requeued %s (%s)\n", entry.ID, entry.EventType)
			return nil
		},
	}

	retryAll := &cobra.Command{
		Use:   "retry-all",
		Short: "Requeue every dead letter entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), e.logger())
			n, err := svc.RetryAllDeadEntries(ctx, allTenants)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "requeued %d entries\n", n)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count outbox entries per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service()
			if err != nil {
				return err
			}
			s, err := svc.GetStats(logger.WithContext(cmd.Context(), e.logger()))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "pending\t%d\n", s.Pending)
			fmt.Fprintf(tw, "processing\t%d\n", s.Processing)
			fmt.Fprintf(tw, "sent\t%d\n", s.Sent)
			fmt.Fprintf(tw, "failed\t%d\n", s.Failed)
			fmt.Fprintf(tw, "dead\t%d\n", s.Dead)
			fmt.Fprintf(tw, "total\t%d\n", s.Total)
			return tw.Flush()
		},
	}

	cmd.AddCommand(dead, retry, retryAll, stats)
	return cmd
}
