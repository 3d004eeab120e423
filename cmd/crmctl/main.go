// crmctl - операторская утилита: сервер, миграции, ручной запуск sweep, просмотр квот.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"crm_backend/database"
	"crm_backend/internal/app"
	"crm_backend/internal/config"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/subscription"
)

var version = "dev"

const (
	sweepTrial         = "trial-notifications"
	sweepSubscriptions = "subscriptions"
	sweepAll           = "all"
)

func main() {
	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Operator CLI for the CRM backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(),
		migrateCmd(),
		sweepCmd(),
		usageCmd(),
		plansCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app.Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := connect()
			if err != nil {
				return err
			}
			return database.AutoMigrate(db)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep [" + sweepTrial + "|" + sweepSubscriptions + "|" + sweepAll + "]",
		Short:     "Run periodic jobs once",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{sweepTrial, sweepSubscriptions, sweepAll},
		RunE: func(cmd *cobra.Command, args []string) error {
			job := sweepAll
			if len(args) == 1 {
				job = args[0]
			}
			if job != sweepTrial && job != sweepSubscriptions && job != sweepAll {
				return fmt.Errorf("unknown sweep %q", job)
			}

			application, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			out := map[string]any{}
			if job == sweepTrial || job == sweepAll {
				res, err := application.TrialWorker.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out[sweepTrial] = res
			}
			if job == sweepSubscriptions || job == sweepAll {
				n, err := application.SubscriptionWorker.ExpireLapsed(cmd.Context())
				if err != nil {
					return err
				}
				out[sweepSubscriptions] = map[string]int64{"expired": n}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func usageCmd() *cobra.Command {
	usage := &cobra.Command{
		Use:   "usage",
		Short: "Inspect the usage ledger",
	}

	var account, month string
	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show usage of every counted feature for one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if month != "" {
				if _, err := time.Parse("2006-01", month); err != nil {
					return fmt.Errorf("invalid --month %q, expected YYYY-MM", month)
				}
			}

			application, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			user, err := findAccount(application.DB, account)
			if err != nil {
				return err
			}

			summary, err := application.Services.UsageService.Summary(cmd.Context(), application.DB, user, month)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), summary)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "account\t%s (%s)\n", user.Email, user.ID)
			fmt.Fprintf(w, "tier\t%s\nmonth\t%s\n\n", summary.Tier, summary.Month)
			fmt.Fprintln(w, "FEATURE\tUSED\tLIMIT\tUSED %\tALLOWED")
			for _, st := range summary.Features {
				limit := fmt.Sprint(st.Limit)
				if st.Unlimited {
					limit = "unlimited"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%.1f\t%t\n", st.Feature, st.UsageCount, limit, st.PercentageUsed, st.Allowed)
			}
			return w.Flush()
		},
	}
	show.Flags().StringVar(&account, "account", "", "Account ID or email")
	show.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current)")
	show.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	_ = show.MarkFlagRequired("account")

	usage.AddCommand(show)
	return usage
}

func plansCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans := subscription.NewResolver(nil).Plans()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), plans)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tNAME\tMONTHLY\tANNUAL\tSAVINGS %")
			for _, p := range plans {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Tier, p.Name,
					p.MonthlyPrice.StringFixed(2), p.AnnualPrice.StringFixed(2), p.AnnualSavingsPercent)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func connect() (*config.Config, *gorm.DB, error) {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func build(ctx context.Context) (*app.Application, error) {
	cfg, db, err := connect()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, db)
}

func findAccount(db *gorm.DB, account string) (*models.User, error) {
	repo := repositories.NewUserRepository()
	var (
		user *models.User
		err  error
	)
	if strings.Contains(account, "@") {
		user, err = repo.FindByEmail(db, strings.ToLower(strings.TrimSpace(account)))
	} else {
		user, err = repo.FindByID(db, account)
	}
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("account %q not found", account)
	}
	return user, err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
