// Package cli implements grievancectl, the operator tool for the escalation
// workflow.
//
//	grievancectl
//	├── auto <issue-id>             evaluate auto-escalation once
//	├── manual <issue-id>           request the one-time manual escalation
//	│   ├── --reason
//	│   └── --by                    user id recorded on the history entry
//	├── show <issue-id>             print escalation state and history
//	├── sweep                       run one auto-escalation sweep over all open issues
//	└── seed                        create an issue (development data)
//
// Every command reads the same configuration as the server (--config or env).
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yashwanths814/vital-sub001/db"
	"github.com/yashwanths814/vital-sub001/internal/config"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
	"github.com/yashwanths814/vital-sub001/workers"
)

// Runtime is what the commands operate on
type Runtime struct {
	Store  store.IssueStore
	Engine *services.EscalationEngine
}

// OpenRuntime builds the runtime from configuration. Tests replace it.
var OpenRuntime = func(ctx context.Context, configPath string) (*Runtime, error) {
	if err := config.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	issueStore, err := store.Open(ctx, config.App)
	if err != nil {
		return nil, err
	}
	sla := services.NewCategorySLA(config.App.Escalation.CategorySLA, config.App.Escalation.DefaultSLADays)
	engine := services.NewEscalationEngine(issueStore, sla, services.EscalationConfig{
		ManualWaitDays: config.App.Escalation.ManualWaitDays,
		MaxAttempts:    config.App.Escalation.MaxAttempts,
	})
	return &Runtime{Store: issueStore, Engine: engine}, nil
}

// BuildCLI assembles the root command
func BuildCLI() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "grievancectl",
		Short:         "Grievance escalation CLI",
		Long:          `Inspect and drive the PDO -> TDO -> DDO escalation of reported issues.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config/dev.config.yaml)")

	open := func(cmd *cobra.Command) (*Runtime, error) {
		return OpenRuntime(cmd.Context(), configPath)
	}

	root.AddCommand(
		buildAutoCommand(open),
		buildManualCommand(open),
		buildShowCommand(open),
		buildSweepCommand(open),
		buildSeedCommand(open),
	)
	return root
}

type opener func(cmd *cobra.Command) (*Runtime, error)

func buildAutoCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "auto <issue-id>",
		Short: "Evaluate auto-escalation for an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Store.Close()

			result, err := rt.Engine.EvaluateAutoEscalation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func buildManualCommand(open opener) *cobra.Command {
	var reason, requestedBy string

	cmd := &cobra.Command{
		Use:   "manual <issue-id>",
		Short: "Request the one-time manual escalation of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Store.Close()

			result, err := rt.Engine.RequestManualEscalation(cmd.Context(), args[0], reason, requestedBy)
			if err != nil {
				var ie *services.IneligibleError
				if errors.As(err, &ie) && ie.Result != nil {
					// waiting states are information, print them like a result
					return printJSON(cmd.OutOrStdout(), ie.Result)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded on the history entry")
	cmd.Flags().StringVar(&requestedBy, "by", "", "user id of the requesting villager")
	return cmd
}

func buildShowCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <issue-id>",
		Short: "Show escalation state and history of an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Store.Close()

			preview, err := rt.Engine.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), preview)
		},
	}
}

func buildSweepCommand(open opener) *cobra.Command {
	var batchSize, concurrency int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one auto-escalation sweep over all open issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Store.Close()

			worker := workers.NewEscalationWorker(rt.Store, rt.Engine, nil)
			worker.BatchSize = batchSize
			worker.Concurrency = concurrency
			stats := worker.Sweep(cmd.Context())
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "issues fetched per page while sweeping")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "issues evaluated in parallel")
	return cmd
}

func buildSeedCommand(open opener) *cobra.Command {
	var id, title, category string
	var daysAgo, slaDays int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create an issue reported some days ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd)
			if err != nil {
				return err
			}
			defer rt.Store.Close()

			issue, err := rt.Store.Create(cmd.Context(), &db.Issue{
				ID:        id,
				Title:     title,
				Category:  category,
				SLADays:   slaDays,
				CreatedAt: time.Now().UTC().Add(-db.DaysToDuration(daysAgo)),
				Status:    db.IssueStatusPending,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), issue)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "issue id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "Sample grievance", "issue title")
	cmd.Flags().StringVar(&category, "category", "other", "issue category")
	cmd.Flags().IntVar(&daysAgo, "days-ago", 0, "how many days ago the issue was reported")
	cmd.Flags().IntVar(&slaDays, "sla-days", 0, "SLA in days (category default when 0)")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
