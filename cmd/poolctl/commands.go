package main

import (
	"fmt"

	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/infrastructure"
	"Poolfund/internal/logger"
	"Poolfund/internal/middleware"
	"Poolfund/internal/pkg"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := infrastructure.Open(cfg)
			if err != nil {
				return err
			}
			if err := infrastructure.Migrate(db); err != nil {
				return err
			}
			logger.Info().Bool("postgres", cfg.Database.IsPostgres()).Msg("schema migrated")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := pkg.ParseID(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			jwtSvc, err := middleware.NewJwtService(cfg.JWT)
			if err != nil {
				return err
			}
			token, err := jwtSvc.GenerateToken(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (ULID) placed in the token subject")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <distributionId>",
		Short: "Run or resume the payout job of a distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pkg.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("invalid distribution id: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := infrastructure.NewDb(cfg)
			if err != nil {
				return err
			}

			processor := distribution.NewProcessor(
				&infrastructure.DistributionRepository{DB: db},
				&infrastructure.PoolRepository{DB: db},
				infrastructure.NewTransactor(db),
				infrastructure.NewDisburser(cfg),
				infrastructure.NewNotifier(),
				distribution.ProcessorConfig{
					Concurrency:   cfg.Payout.Concurrency,
					LeaseTimeout:  cfg.Payout.LeaseTimeout,
					PayoutTimeout: cfg.Payout.Timeout,
				},
			)

			d, err := processor.Process(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s distributed=%s retained=%s\n",
				d.Id, d.Status, d.DistributedAmount.String(), d.RetainedAmount.String())
			if d.FailureReason != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failure: %s\n", *d.FailureReason)
			}
			return nil
		},
	}
}
