package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func createAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Queries the workflow audit log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list <entity-id>",
		Short: "Lists recorded transitions for an entity or circle, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return c.withBackend(cmd, func(ctx context.Context, b backend) error {
				records, err := b.ListAuditRecords(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "no audit records for %s\n", args[0])
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "OCCURRED\tTYPE\tENTITY\tACTOR\tSUBJECT\tSTATUS")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.OccurredAt.UTC().Format(time.RFC3339), r.Type, r.EntityID,
						dash(r.ActorID), dash(r.SubjectID), dash(r.Status))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "maximum records to list")
	cmd.AddCommand(list)

	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
