package main

import (
	"github.com/spf13/cobra"

	"contest-platform/internal/auth"
	"contest-platform/internal/services"
	"contest-platform/internal/store/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			pg, err := postgres.New(cmd.Context(), cfg.DSN, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Msg("Schema is up to date")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-ended",
		Short: "Mark every contest past its deadline as ended",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := services.NewContestService(st, auth.UserRoles{Users: st}, logger)
			n, err := svc.SweepEnded(cmd.Context())
			logger.Info().Int("ended", n).Msg("Sweep complete")
			return err
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-winners",
		Short: "Restore winner records missing for contests with a declared winner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := services.NewSubmissionService(st, auth.UserRoles{Users: st}, nil, nil, logger)
			n, err := svc.ReconcileWinnerRecords(cmd.Context())
			logger.Info().Int("restored", n).Msg("Winner reconciliation complete")
			return err
		},
	}
}
