package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rnpdno/internal/extract"
	"github.com/ppiankov/rnpdno/internal/model"
)

var (
	statusID       string
	title          string
	dateStart      string
	dateEnd        string
	nationalityID  string
	stateCodes     []string
	extraParams    map[string]string
	outputPath     string
	reportPath     string
	workers        int
	requestTimeout time.Duration
	runTimeout     time.Duration
	useCache       bool
	discoverStates bool
	statesFile     string
	metricsFile    string
	insecureTLS    bool
	respectRobots  bool
	strict         bool
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract registry records for every state into one dataset",
	Long: `Extract walks every state of the registry with one filter and writes a single
deduplicated JSON dataset.

States that fail after retries are skipped and listed in the summary; the
dataset is still written. Use --strict to exit non-zero in that case.

Example:
  rnpdno extract
  rnpdno extract --from 2023-01-01 --to 2023-12-31 --output ./salida/2023.json
  rnpdno extract --state 9 --state 15 --workers 2 --report ./salida/run.json
  rnpdno extract --param id_sexo=2 --cache`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	// Filter flags
	extractCmd.Flags().StringVar(&statusID, "status", "7", "victim status category (empty for all)")
	extractCmd.Flags().StringVar(&title, "title", "PERSONAS DESAPARECIDAS Y NO LOCALIZADAS", "title written into the dataset")
	extractCmd.Flags().StringVar(&dateStart, "from", "2024-01-01", "start date, inclusive (YYYY-MM-DD)")
	extractCmd.Flags().StringVar(&dateEnd, "to", "2025-01-01", "end date, inclusive (YYYY-MM-DD)")
	extractCmd.Flags().StringVar(&nationalityID, "nationality", "1", "nationality category (empty for all)")
	extractCmd.Flags().StringArrayVar(&stateCodes, "state", nil, "restrict the run to a state code (repeatable)")
	extractCmd.Flags().StringToStringVar(&extraParams, "param", nil, "extra registry form field, key=value (repeatable)")

	// Output flags
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "dataset path (default from config: ./salida/datos.json)")
	extractCmd.Flags().StringVar(&reportPath, "report", "", "write the run report to this path")
	extractCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")

	// Run flags
	extractCmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of states walked concurrently")
	extractCmd.Flags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "per-request timeout")
	extractCmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "overall run timeout (0 for none)")
	extractCmd.Flags().BoolVar(&useCache, "cache", false, "cache registry pages in memory and on disk")
	extractCmd.Flags().BoolVar(&discoverStates, "discover-states", false, "load the state catalog from the registry")
	extractCmd.Flags().StringVar(&statesFile, "states-file", "", "read state codes from a file, one per line")
	extractCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
	extractCmd.Flags().BoolVar(&respectRobots, "respect-robots", false, "honour the registry's robots.txt")
	extractCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any state failed")
}

// applyExtractFlags overlays explicitly set flags on cfg
func applyExtractFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = outputPath
	}
	if flags.Changed("report") {
		cfg.Output.ReportPath = reportPath
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = metricsFile
	}
	if flags.Changed("workers") {
		cfg.Concurrency.Workers = workers
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = requestTimeout
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = useCache
	}
	if flags.Changed("discover-states") {
		cfg.Registry.DiscoverStates = discoverStates
	}
	if flags.Changed("states-file") {
		cfg.Registry.StatesFile = statesFile
	}
	if flags.Changed("insecure") {
		cfg.HTTP.InsecureTLS = insecureTLS
	}
	if flags.Changed("respect-robots") {
		cfg.HTTP.RespectRobots = respectRobots
	}
}

func filterParams() model.FilterParams {
	return model.FilterParams{
		StatusID:      statusID,
		Title:         title,
		DateStart:     dateStart,
		DateEnd:       dateEnd,
		NationalityID: nationalityID,
		States:        stateCodes,
		Extra:         extraParams,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyExtractFlags(cmd, cfg)

	// Reject bad filters before touching the filesystem or the network
	params := filterParams()
	if _, err := model.NewFilterSpec(params); err != nil {
		return err
	}

	for _, path := range []string{cfg.Output.Path, cfg.Output.ReportPath, cfg.Metrics.File} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	stderr := cmd.ErrOrStderr()
	printBanner(stderr, params, cfg)

	outcome, err := extract.Extract(ctx, params, cfg, newLogger(cfg))
	if outcome != nil {
		printSummary(stderr, outcome)
	}
	if err != nil {
		if errors.Is(err, extract.ErrCancelled) {
			return fmt.Errorf("extraction interrupted, %s left unchanged: %w", cfg.Output.Path, err)
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	return verdict(outcome, strict)
}

// verdict maps a completed run to the command's exit status
func verdict(outcome *model.RunOutcome, strict bool) error {
	switch {
	case len(outcome.States) > 0 && outcome.FailedCount == len(outcome.States):
		return fmt.Errorf("all %d states failed", outcome.FailedCount)
	case strict && outcome.FailedCount > 0:
		return fmt.Errorf("%d of %d states failed", outcome.FailedCount, len(outcome.States))
	}
	return nil
}

func printBanner(w io.Writer, params model.FilterParams, cfg *model.Config) {
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  RNPDNO Extraction\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Title:     %s\n", params.Title)
	fmt.Fprintf(w, "  Status:    %s\n", orAll(params.StatusID))
	fmt.Fprintf(w, "  Dates:     %s .. %s\n", params.DateStart, params.DateEnd)
	fmt.Fprintf(w, "  Origin:    %s\n", orAll(params.NationalityID))
	if len(params.States) > 0 {
		fmt.Fprintf(w, "  States:    %v\n", params.States)
	}
	fmt.Fprintf(w, "  Workers:   %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(w, "  Output:    %s\n", cfg.Output.Path)
	fmt.Fprintf(w, "\n")
}

func printSummary(w io.Writer, outcome *model.RunOutcome) {
	if len(outcome.States) > 0 {
		for _, s := range outcome.States {
			if s.Succeeded() {
				fmt.Fprintf(w, "✓ %s: %d records, %d pages\n", s.State, s.Records, s.Pages)
				continue
			}
			fmt.Fprintf(w, "✗ %s: %s\n", s.State, s.Error)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Extraction %s\n", phaseLabel(outcome.Phase))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Run:        %s\n", outcome.RunID)
	fmt.Fprintf(w, "  States:     %d\n", len(outcome.States))
	fmt.Fprintf(w, "  Failed:     %d\n", outcome.FailedCount)
	fmt.Fprintf(w, "  Pages:      %d\n", outcome.Pages)
	fmt.Fprintf(w, "  Records:    %d\n", outcome.Records)
	fmt.Fprintf(w, "  Collisions: %d\n", outcome.Collisions)
	if outcome.OutputPath != "" {
		fmt.Fprintf(w, "  Output:     %s\n", outcome.OutputPath)
	}
	fmt.Fprintf(w, "  Elapsed:    %s\n", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
}

func phaseLabel(p model.Phase) string {
	if p == model.PhaseDone {
		return "Complete"
	}
	return "Failed"
}

func orAll(s string) string {
	if s == "" {
		return "(all)"
	}
	return s
}
