// cluster enqueues clustering runs for the API's River workers, shows recent runs and loads
// feedback from CSV files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/formbricks/themes/internal/config"
	"github.com/formbricks/themes/internal/feedbackcsv"
	"github.com/formbricks/themes/internal/models"
	"github.com/formbricks/themes/internal/observability"
	"github.com/formbricks/themes/internal/repository"
	"github.com/formbricks/themes/internal/workers"
	"github.com/formbricks/themes/pkg/database"
)

var (
	minClusterSize int
	minSamples     int
	llmRefinement  bool
	historyLimit   int
	importDryRun   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Enqueue and inspect feedback clustering runs",
	Long: `cluster talks to the themes database directly. Runs are executed by the River
workers of the API process; this tool only enqueues them.`,
	SilenceUsage: true,
}

func init() {
	enqueueCmd.Flags().IntVar(&minClusterSize, "min-cluster-size", 0, "override HDBSCAN min cluster size")
	enqueueCmd.Flags().IntVar(&minSamples, "min-samples", 0, "override HDBSCAN min samples")
	enqueueCmd.Flags().BoolVar(&llmRefinement, "llm", false, "refine labels with the LLM")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse the file without writing to the database")

	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(importCmd)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a clustering run",
	Long: `Enqueue a clustering run. Without flags the run uses the API's current defaults,
including any scoring override set through the API. At most one run waits in the queue.

Examples:
  cluster enqueue
  cluster enqueue --min-cluster-size 10 --llm`,
	Args: cobra.NoArgs,
	RunE: runEnqueue,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent clustering runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load feedback items from a CSV file",
	Long: `Load feedback items from a CSV file with a header row. Only the text column is
required; source, account, created_at, sentiment_score and source_confidence are read when
present and any other column is stored as metadata. Rows that fail to parse are reported and
skipped.

Examples:
  cluster import feedback.csv
  cluster import --dry-run feedback.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func setup(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithMaxConns(2))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return cfg, db, nil
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	args := workers.ClusteringRunArgs{Trigger: models.TriggerCLI}

	if cmd.Flags().Changed("min-cluster-size") || cmd.Flags().Changed("min-samples") || cmd.Flags().Changed("llm") {
		runCfg := cfg.RunConfig()

		if cmd.Flags().Changed("min-cluster-size") {
			runCfg.MinClusterSize = minClusterSize
		}

		if cmd.Flags().Changed("min-samples") {
			runCfg.MinSamples = minSamples
		}

		if cmd.Flags().Changed("llm") {
			runCfg.LLMRefinement = llmRefinement
		}

		args.Config = &runCfg
	}

	client, err := workers.NewInsertOnlyClient(db)
	if err != nil {
		return err
	}

	jobID, duplicate, err := workers.NewRiverJobInserter(client).InsertClusteringRun(ctx, args)
	if err != nil {
		return err
	}

	if duplicate {
		fmt.Fprintf(cmd.OutOrStdout(), "A clustering run is already queued (job %d).\n", jobID)

		return nil
	}

	slog.Info("clustering run enqueued", "job_id", jobID)
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued clustering run job %d.\n", jobID)

	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	_, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repository.NewRunsRepository(db).List(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tTRIGGER\tSTARTED\tTHEMES\tINSIGHTS\tNOISE\tERROR")

	for _, r := range runs {
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.State, r.Trigger, formatTime(r.StartedAt),
			r.ThemesCreated, r.InsightsCreated, r.NoiseCount, errMsg)
	}

	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	items, stats, err := feedbackcsv.Read(f, time.Now().UTC())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, rowErr := range stats.Failed {
		fmt.Fprintf(out, "skipped %v\n", rowErr)
	}

	fmt.Fprintf(out, "%d rows read, %d empty, %d failed, %d items\n",
		stats.TotalRows, stats.SkippedEmpty, len(stats.Failed), len(items))

	if importDryRun {
		return nil
	}

	ctx := cmd.Context()

	_, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repository.NewFeedbackRepository(db).Insert(ctx, items)
	if err != nil {
		return err
	}

	slog.Info("feedback imported", "file", args[0], "items", n)
	fmt.Fprintf(out, "Imported %d feedback items. Run `cluster enqueue` to re-cluster.\n", n)

	return nil
}
