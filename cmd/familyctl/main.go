// Command familyctl is the operator CLI for the FamilyShare workflow engine:
// schema migrations, alert moderation, audit log queries and test tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/repository"
	"github.com/familyshare/familyshare/internal/store"
	"github.com/familyshare/familyshare/migrations"
)

const commandTimeout = 30 * time.Second

var (
	yellow       = color.New(color.FgYellow).SprintFunc()
	red          = color.New(color.FgRed).SprintFunc()
	warningLabel = yellow("Warning:")
)

// backend is the storage familyctl operates on.
type backend interface {
	store.AlertStore
	ListAuditRecords(ctx context.Context, entityID string, limit int) ([]events.AuditRecord, error)
	MigrateUp(ctx context.Context) ([]string, error)
	MigrateDown(ctx context.Context) error
	Close()
}

type opener func(ctx context.Context, databaseURL string) (backend, error)

type postgresBackend struct {
	*repository.Repository
}

func (b postgresBackend) MigrateUp(ctx context.Context) ([]string, error) {
	return migrations.Up(ctx, b.Pool())
}

func (b postgresBackend) MigrateDown(ctx context.Context) error {
	return migrations.Down(ctx, b.Pool())
}

func openPostgres(ctx context.Context, databaseURL string) (backend, error) {
	repo, err := repository.New(ctx, databaseURL, repository.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		return nil, err
	}
	return postgresBackend{repo}, nil
}

// cli carries flags shared by every subcommand.
type cli struct {
	open        opener
	databaseURL string
}

func (c *cli) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	if c.databaseURL == "" {
		return errors.New("DATABASE_URL is required (set the env var or pass --database-url)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	b, err := c.open(ctx, c.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer b.Close()

	return fn(ctx, b)
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	cmd := &cobra.Command{
		Use:           "familyctl",
		Short:         "familyctl operates a FamilyShare workflow deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&c.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	cmd.AddCommand(
		createMigrateCmd(c),
		createAlertsCmd(c),
		createAuditCmd(c),
		createTokenCmd(),
	)
	return cmd
}

func main() {
	cmd := newRootCmd(openPostgres)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}
