package app

import (
	"bytes"
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

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sheetsync/internal/config"
	"sheetsync/internal/etl"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "sheetsync",
		Short: "Replace MongoDB collections with cleaned spreadsheet exports",
		Long: `sheetsync fetches the ds, report and care spreadsheet exports, coerces
their columns to timestamps, numbers and strings, drops placeholder rows,
and replaces the matching command_center_* collections wholesale.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			binds := map[string]string{
				"log.level":       "log-level",
				"log.format":      "log-format",
				"sync.gate":       "gate",
				"sync.concurrent": "concurrent",
			}
			for key, flag := range binds {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			loaded, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./sheetsync.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: text or json")

	current := func() *config.Config { return cfg }
	root.AddCommand(newRunCommand(current), newPreviewCommand(current), newHistoryCommand(current))
	return root
}

func newRunCommand(cfg func() *config.Config) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every pipeline once and replace its collection",
		Long: `Fetch, clean and load each pipeline once.

With --gate all (default) every source must fetch and clean successfully
before any collection is touched. With --gate independent each pipeline stands alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := New(cfg())
			defer a.Shutdown(context.Background())
			if err := a.Startup(cmd.Context(), Needs{Sink: true, History: true}); err != nil {
				return err
			}

			report, err := a.Sync().Run(cmd.Context(), only)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	cmd.Flags().String("gate", "", "fetch gate: all or independent")
	cmd.Flags().Bool("concurrent", false, "run pipelines concurrently")
	cmd.Flags().StringSliceVar(&only, "only", nil, "comma-separated pipelines to run (ds, report, care)")
	return cmd
}

func newPreviewCommand(cfg func() *config.Config) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:       "preview <pipeline>",
		Short:     "Fetch and clean one source, print documents without writing",
		Args:      cobra.ExactArgs(1),
		ValidArgs: etl.PipelineNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := New(cfg())
			defer a.Shutdown(context.Background())
			if err := a.Startup(cmd.Context(), Needs{}); err != nil {
				return err
			}

			t, stats, err := a.Sync().Preview(cmd.Context(), args[0], rows)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s: %d rows read, %d dropped, %d cells degraded, %d nulled\n",
				args[0], stats.RowsRead, stats.Dropped, stats.Degraded, stats.Nulled)
			for _, f := range t.Schema().Fields {
				fmt.Fprintf(out, "#   %-28s %s\n", f.Name, f.Type)
			}
			return writeDocuments(out, t)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 5, "number of documents to print (-1 for all)")
	return cmd
}

func newHistoryCommand(cfg func() *config.Config) *cobra.Command {
	var pipeline string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := New(cfg())
			defer a.Shutdown(context.Background())
			if err := a.Startup(cmd.Context(), Needs{History: true}); err != nil {
				return err
			}

			runs, err := a.Sync().History(pipeline, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tRUN\tPIPELINE\tSTATUS\tREAD\tDROPPED\tWRITTEN\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), shortID(r.RunID), r.Pipeline, r.Status,
					r.RowsRead, r.RowsDropped, r.RowsWritten, r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "only show runs of this pipeline")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}

// ── Output ─────────────────────────────────────────────────

func printReport(w io.Writer, report *etl.RunReport) {
	fmt.Fprintf(w, "run %s (%s, gate=%s)\n", shortID(report.RunID), report.Status, report.Gate)
	for _, res := range report.Results {
		switch res.Status {
		case etl.StatusSuccess:
			fmt.Fprintf(w, "  ✓ inserted %d records to %s\n", res.RowsWritten, res.Collection)
		case etl.StatusEmpty:
			fmt.Fprintf(w, "  ⚠ no valid records for %s, collection left empty\n", res.Collection)
		case etl.StatusSkipped:
			fmt.Fprintf(w, "  - skipped %s: %s\n", res.Collection, res.Error)
		default:
			fmt.Fprintf(w, "  ✗ %s: %s\n", res.Collection, res.Error)
		}
	}
}

// writeDocuments prints one JSON document per line, fields in column order.
func writeDocuments(w io.Writer, t *etl.Table) error {
	for _, r := range t.Records {
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, col := range t.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(col)
			val, err := json.Marshal(r.Data[col])
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteString("}\n")
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// describe renders an error for the terminal, naming the failing stage.
func describe(err error) string {
	var fe *etl.FetchError
	var se *etl.SchemaMismatchError
	var we *etl.SinkWriteError
	var parts []string
	if errors.As(err, &fe) {
		parts = append(parts, "source could not be fetched")
	}
	if errors.As(err, &se) {
		parts = append(parts, "source does not have the expected columns")
	}
	if errors.As(err, &we) {
		parts = append(parts, "collection write failed, it may be empty or partial")
	}
	if len(parts) == 0 {
		return err.Error()
	}
	log.WithError(err).Debug("run failed")
	return strings.Join(parts, "; ") + "\n" + err.Error()
}
