package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/communitysignals/scout/config"
	"github.com/communitysignals/scout/internal/content"
	"github.com/communitysignals/scout/internal/llm"
	"github.com/communitysignals/scout/internal/notify"
	"github.com/communitysignals/scout/internal/pipeline"
	"github.com/communitysignals/scout/internal/scheduler"
	"github.com/communitysignals/scout/internal/store"
	"github.com/communitysignals/scout/internal/telemetry"
)

// runCMD executes a single pipeline invocation from the command line: either
// an ad-hoc research question or a forced incremental scheduler run.
func runCMD() *cobra.Command {
	var (
		cfgPath  string
		question string
		force    bool
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once (research question or forced incremental run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if question == "" && !force {
				return fmt.Errorf("either --question or --force is required")
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()

			tele := telemetry.New(cfg.Telemetry.CostTracking)
			provider, err := llm.NewProvider(cfg.LLM, tele)
			if err != nil {
				return err
			}
			contentStore, err := newContentStore(cfg.ContentStore)
			if err != nil {
				return err
			}
			research := pipeline.NewResearch(provider, contentStore, cfg.LLM.Routing, cfg.Retrieval)

			if question != "" {
				result, err := research.Run(ctx, question, cfg.Scoring.Rubric.Platforms, nil, nil)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
				tele.Summary()
				return nil
			}

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("connecting postgres: %w", err)
			}
			defer st.Close()

			scorer := pipeline.NewScorer(provider, cfg.LLM.Routing, cfg.Scoring.Rubric)
			sched := scheduler.New(cfg.Scheduler, cfg.Scoring, st, contentStore, scorer, research, notify.Nop{}, tele, nil)

			result, err := sched.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d analyzed=%d tasks_created=%d duration=%dms\n",
				result.Processed, result.Analyzed, result.TasksCreated, result.DurationMs)
			tele.Summary()
			return nil
		},
	}
	run.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	run.Flags().StringVar(&question, "question", "", "ad-hoc research question")
	run.Flags().BoolVar(&force, "force", false, "force an incremental run over the configured lookback window")
	return run
}

func newContentStore(cfg config.ContentStoreConfig) (content.Store, error) {
	switch cfg.Mode {
	case "bleve":
		return content.NewBleveStore(cfg.IndexPath)
	case "", "http":
		return content.NewHTTPStore(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported content store mode: %s", cfg.Mode)
	}
}
