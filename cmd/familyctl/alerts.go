package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/service"
)

// moderationAction runs one alert transition as the operator.
type moderationAction func(ctx context.Context, svc *service.AlertService, alertID string, operator service.Actor) (*model.PublicAlert, error)

func createAlertsCmd(c *cli) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Moderates public alerts",
	}
	cmd.PersistentFlags().StringVar(&operator, "as", "familyctl", "moderator id recorded on transitions")

	actor := func() service.Actor { return service.Actor{UserID: operator, Moderator: true} }

	transition := func(use, short string, action moderationAction) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <alert-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withBackend(cmd, func(ctx context.Context, b backend) error {
					alert, err := action(ctx, service.NewAlertService(b), args[0], actor())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "alert %s is %s\n", alert.ID, alert.Status)
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		transition("flag", "Hides an alert pending moderation",
			func(ctx context.Context, svc *service.AlertService, id string, op service.Actor) (*model.PublicAlert, error) {
				return svc.FlagForModeration(ctx, id, op.UserID)
			}),
		transition("reinstate", "Returns a flagged alert to the public board",
			func(ctx context.Context, svc *service.AlertService, id string, op service.Actor) (*model.PublicAlert, error) {
				return svc.Reinstate(ctx, id, op)
			}),
		transition("resolve", "Closes an alert",
			func(ctx context.Context, svc *service.AlertService, id string, op service.Actor) (*model.PublicAlert, error) {
				return svc.Resolve(ctx, id, op)
			}),
	)

	var limit int
	queue := &cobra.Command{
		Use:   "queue",
		Short: "Lists alerts awaiting moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b backend) error {
				alerts, err := service.NewAlertService(b).ListAlerts(ctx, service.ListAlertsInput{
					Viewer: actor(),
					Status: model.AlertPendingModeration,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if len(alerts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "moderation queue is empty")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tCREATED\tTITLE")
				for _, a := range alerts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Type, a.CreatedAt.UTC().Format(time.RFC3339), a.Title)
				}
				return w.Flush()
			})
		},
	}
	queue.Flags().IntVar(&limit, "limit", 50, "maximum alerts to list")
	cmd.AddCommand(queue)

	return cmd
}
