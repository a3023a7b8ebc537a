package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dessert_generator_go_backend/internal/config"
	"dessert_generator_go_backend/internal/database"
	"dessert_generator_go_backend/internal/jobs"
	"dessert_generator_go_backend/internal/logger"
	"dessert_generator_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfg *config.Config
	l   zerolog.Logger

	reason string

	rootCmd = &cobra.Command{
		Use:          "maintenance",
		Short:        "Operational tasks for the dessert generator backend",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			_ = godotenv.Load()
			var err error
			cfg, err = config.NewConfig()
			if err != nil {
				return err
			}
			l = logger.New(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			l.Info().Msg("schema up to date")
			return nil
		},
	}

	sweepCacheCmd = &cobra.Command{
		Use:   "sweep-cache",
		Short: "Delete expired dessert cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd.Context(), jobs.JobCacheSweep)
		},
	}

	pruneUsageCmd = &cobra.Command{
		Use:   "prune-usage",
		Short: "Delete usage log entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd.Context(), jobs.JobUsagePrune)
		},
	}

	renewCreditsCmd = &cobra.Command{
		Use:   "renew-credits",
		Short: "Refill premium users whose renewal period has elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd.Context(), jobs.JobCreditRenewal)
		},
	}

	setCreditsCmd = &cobra.Command{
		Use:   "set-credits <user-id> <credits>",
		Short: "Set a user's credit balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			var credits int
			if _, err := fmt.Sscan(args[1], &credits); err != nil {
				return fmt.Errorf("invalid credits: %w", err)
			}

			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return err
			}
			user, err := newCreditService(db).UpdateCredits(cmd.Context(), userID, credits, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d credits\n", user.ID, user.Credits)
			return nil
		},
	}

	upgradeCmd = &cobra.Command{
		Use:   "upgrade <user-id>",
		Short: "Move a user to the premium tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			db, err := database.InitDB(cfg.Database)
			if err != nil {
				return err
			}
			user, err := newCreditService(db).UpgradeToPremium(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is premium with %d credits\n", user.ID, user.Credits)
			return nil
		},
	}
)

func newCreditService(db *gorm.DB) *services.CreditService {
	return services.NewCreditService(services.NewUserServiceDB(db), services.NewUsageLogServiceDB(db), services.CreditPolicy{
		FreeAllotment:    cfg.Credits.FreeAllotment,
		PremiumAllotment: cfg.Credits.PremiumAllotment,
		RenewalPeriod:    cfg.Credits.RenewalPeriod(),
	}, l, nil)
}

// runJob executes one scheduled job immediately, with the same timeout and logging as the server.
func runJob(ctx context.Context, name string) error {
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return err
	}

	cache := services.NewTwoTierCache(
		services.NewLRUMemoryTier(cfg.Cache.MemoryCapacity, cfg.Cache.MemoryTTL, time.Now),
		services.NewCacheServiceDB(db),
		cfg.Cache.DefaultTTL,
		services.WithCacheLogger(l),
	)
	usage := services.NewUsageLogService(services.NewUsageLogServiceDB(db), cfg.Jobs.UsageRetention)

	scheduler := jobs.NewScheduler(cfg.Jobs.JobTimeout, l, nil)
	if err := jobs.Register(scheduler, cfg.Jobs, cache, usage, newCreditService(db)); err != nil {
		return err
	}

	n, err := scheduler.Run(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rows affected\n", name, n)
	return nil
}

func init() {
	setCreditsCmd.Flags().StringVar(&reason, "reason", "manual adjustment", "reason recorded in the usage log")
	rootCmd.AddCommand(migrateCmd, sweepCacheCmd, pruneUsageCmd, renewCreditsCmd, setCreditsCmd, upgradeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
