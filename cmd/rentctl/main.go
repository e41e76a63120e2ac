// Command rentctl is the operator CLI: schema migrations, bootstrap accounts
// and period lookups.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/migrations"
	"rentdesk/internal/models"
	"rentdesk/internal/store/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// adminStore is the slice of the store the bootstrap commands write to.
type adminStore interface {
	CreateAgency(ctx context.Context, agency models.Agency, cfg models.CommissionConfig) (models.Agency, error)
	CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error)
}

type env struct {
	now       func() time.Time
	openStore func(ctx context.Context) (adminStore, func(), error)
	migrate   func(ctx context.Context) ([]string, error)
	adminFee  int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := newRootCmd(defaultEnv(cfg)).Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultEnv(cfg config.Config) env {
	connect := func(ctx context.Context) (*pgxpool.Pool, error) {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DB_DSN is not set")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		return pool, nil
	}
	return env{
		now:      func() time.Time { return time.Now().UTC() },
		adminFee: cfg.DefaultAdminFeeBP,
		openStore: func(ctx context.Context) (adminStore, func(), error) {
			pool, err := connect(ctx)
			if err != nil {
				return nil, nil, err
			}
			return postgres.NewStore(pool), pool.Close, nil
		},
		migrate: func(ctx context.Context) ([]string, error) {
			pool, err := connect(ctx)
			if err != nil {
				return nil, err
			}
			defer pool.Close()
			return migrations.Apply(ctx, pool)
		},
	}
}

func newRootCmd(e env) *cobra.Command {
	root := &cobra.Command{
		Use:          "rentctl",
		Short:        "Operate a rentdesk deployment",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(e),
		newPeriodsCmd(e),
		newHashPasswordCmd(),
		newCreateAgencyCmd(e),
		newCreateUserCmd(e),
	)
	return root
}
