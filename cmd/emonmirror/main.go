// Package main provides the emonmirror CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/emonmirror/emonmirror/pkg/api"
	"github.com/emonmirror/emonmirror/pkg/config"
	"github.com/emonmirror/emonmirror/pkg/emoncms"
	"github.com/emonmirror/emonmirror/pkg/energy"
	"github.com/emonmirror/emonmirror/pkg/export"
	"github.com/emonmirror/emonmirror/pkg/mirror"
	"github.com/emonmirror/emonmirror/pkg/series"
	"github.com/emonmirror/emonmirror/pkg/storage"
	"github.com/emonmirror/emonmirror/pkg/storage/badger"
)

var version = "0.1.0"

func main() {
	// A .env next to the binary is a convenience, not a requirement.
	godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// getDataDir returns the local store directory.
func getDataDir() string {
	if dir := os.Getenv("EMONMIRROR_DATA_DIR"); dir != "" {
		return dir
	}
	return config.DefaultDataDir
}

// getPort returns the API server port.
func getPort() string {
	if port := os.Getenv("EMONMIRROR_PORT"); port != "" {
		return port
	}
	return config.DefaultPort
}

// newSource builds the remote source client from the environment.
func newSource() (emoncms.Source, error) {
	url := os.Getenv("EMONMIRROR_URL")
	apiKey := os.Getenv("EMONMIRROR_APIKEY")
	if url == "" || apiKey == "" {
		return nil, fmt.Errorf("missing credentials: set EMONMIRROR_URL and EMONMIRROR_APIKEY environment variables")
	}
	return emoncms.NewClient(url, apiKey), nil
}

// openStore opens the local store, creating the directory if needed.
func openStore(dataDir string) (storage.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return badger.New(badger.Config{
		Path:        dataDir,
		MaxMemoryMB: config.DefaultMaxMemoryMB,
	})
}

// newRootCmd creates the root command for the emonmirror CLI.
func newRootCmd() *cobra.Command {
	var dataDir string

	rootCmd := &cobra.Command{
		Use:     "emonmirror",
		Short:   "Mirror energy feeds into a local store and aggregate them",
		Long:    "Emonmirror incrementally copies numeric feeds from a remote energy monitor into a local store and computes period energy figures from them.",
		Version: version,
	}

	rootCmd.SetVersionTemplate("emonmirror version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", getDataDir(), "Local store directory")

	rootCmd.AddCommand(newInitCmd(&dataDir))
	rootCmd.AddCommand(newUpdateCmd(&dataDir))
	rootCmd.AddCommand(newFeedsCmd(&dataDir))
	rootCmd.AddCommand(newShowCmd(&dataDir))
	rootCmd.AddCommand(newEnergyCmd(&dataDir))
	rootCmd.AddCommand(newSummaryCmd(&dataDir))
	rootCmd.AddCommand(newExportCmd(&dataDir))
	rootCmd.AddCommand(newServeCmd(&dataDir))

	return rootCmd
}

// newInitCmd creates the init subcommand.
func newInitCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init <feed-id>...",
		Short: "Initialize the feed registry from remote feed ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, len(args))
			for i, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid feed id %q", arg)
				}
				ids[i] = id
			}

			src, err := newSource()
			if err != nil {
				return err
			}
			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), config.FetchTimeout)
			defer cancel()

			reg, err := mirror.NewRunner(src, store).InitRegistry(ctx, ids)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registry initialized with %d feeds:\n", len(reg.Feeds))
			for _, feed := range reg.Feeds {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d  %s (%s, every %ds, since %s)\n",
					feed.ID, feed.Name, feed.Unit, feed.Interval, formatTime(feed.StartTime))
			}
			return nil
		},
	}
}

// newUpdateCmd creates the update subcommand.
func newUpdateCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Advance every mirrored feed to the remote's current end",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := newSource()
			if err != nil {
				return err
			}
			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			runner := mirror.NewRunner(src, store)
			runner.SetReporter(mirror.LogReporter{})

			summary, err := runner.RunUpdate(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d feeds: %d updated, %d partial, %d failed\n",
				summary.Feeds, summary.Updated, summary.Partial, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d feeds failed", summary.Failed)
			}
			return nil
		},
	}
}

// newFeedsCmd creates the feeds subcommand.
func newFeedsCmd(dataDir *string) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "List mirrored feeds, or remote feeds with --remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				src, err := newSource()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(context.Background(), config.FetchTimeout)
				defer cancel()

				feeds, err := src.ListFeeds(ctx)
				if err != nil {
					return err
				}
				for _, feed := range feeds {
					fmt.Fprintf(cmd.OutOrStdout(), "%d  %s (%s)\n", feed.ID, feed.Name, feed.Unit)
				}
				return nil
			}

			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			reg, err := store.LoadRegistry(cmd.Context())
			if err != nil {
				return err
			}
			for _, feed := range reg.Feeds {
				s, err := store.LoadSeries(cmd.Context(), feed.Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d  %s (%s, every %ds): %d ticks, %d missing\n",
					feed.ID, feed.Name, feed.Unit, feed.Interval, s.Len(), s.MissingCount())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "List feeds on the remote source instead")

	return cmd
}

// newShowCmd creates the show subcommand.
func newShowCmd(dataDir *string) *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "show <feed>",
		Short: "Print a mirrored feed's samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.LoadSeries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("no series for feed %q", args[0])
			}

			samples := s.Samples()
			if tail > 0 && tail < len(samples) {
				samples = samples[len(samples)-tail:]
			}
			for _, sm := range samples {
				if series.IsMissing(sm.Value) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  null\n", formatTime(sm.Time))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %g\n", formatTime(sm.Time), sm.Value)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Print only the last n samples")

	return cmd
}

// newEnergyCmd creates the energy subcommand.
func newEnergyCmd(dataDir *string) *cobra.Command {
	var periodStr, unitStr string
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "energy <feed>",
		Short: "Print a feed's energy per period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := energy.ParsePeriod(periodStr)
			if err != nil {
				return err
			}
			unit, err := energy.ParseUnit(unitStr)
			if err != nil {
				return err
			}

			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.LoadSeries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("no series for feed %q", args[0])
			}

			for _, p := range energy.Integrate(s, period, unit, tolerance) {
				if series.IsMissing(p.Energy) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  null\n", p.Start.Format("2006-01-02"))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %.3f %s\n", p.Start.Format("2006-01-02"), p.Energy, unit.Name)
				}
			}
			return nil
		},
	}

	addAggregationFlags(cmd, &periodStr, &unitStr, &tolerance)

	return cmd
}

// newSummaryCmd creates the summary subcommand.
func newSummaryCmd(dataDir *string) *cobra.Command {
	var periodStr, unitStr string
	var tolerance float64
	var totals []string
	var years []int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the multi-year cross-feed energy summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := energy.ParsePeriod(periodStr)
			if err != nil {
				return err
			}
			unit, err := energy.ParseUnit(unitStr)
			if err != nil {
				return err
			}

			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			reg, err := store.LoadRegistry(cmd.Context())
			if err != nil {
				return err
			}

			loaded := make(map[string]*series.Series, len(reg.Feeds))
			for _, feed := range reg.Feeds {
				s, err := store.LoadSeries(cmd.Context(), feed.Name)
				if err != nil {
					return err
				}
				loaded[feed.Name] = s
			}
			if len(years) == 0 {
				years = energy.SpannedYears(loaded)
				if len(years) == 0 {
					return fmt.Errorf("no stored data to summarize")
				}
			}

			averaged := make(map[string]energy.Averaged, len(loaded))
			for name, s := range loaded {
				averaged[name] = energy.Average(s, period, years, unit, tolerance)
			}

			summary, err := energy.Summarize(reg.Names(), averaged, totals)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "period")
			for _, name := range summary.Names {
				fmt.Fprintf(cmd.OutOrStdout(), "\t%s", name)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			for i, row := range summary.Energy {
				fmt.Fprintf(cmd.OutOrStdout(), "%d", i+1)
				for _, v := range row {
					if series.IsMissing(v) {
						fmt.Fprintf(cmd.OutOrStdout(), "\tnull")
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "\t%.3f", v)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}

	addAggregationFlags(cmd, &periodStr, &unitStr, &tolerance)
	cmd.Flags().StringSliceVar(&totals, "total", nil, "Feeds whose sum is the site's total power (required)")
	cmd.Flags().IntSliceVar(&years, "years", nil, "Years to average (default: every year with data)")
	cmd.MarkFlagRequired("total")

	return cmd
}

// newExportCmd creates the export subcommand.
func newExportCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write all mirrored series to one CSV table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := export.NewExporter(store).ExportToFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d feeds, %d rows to %s\n", result.Feeds, result.Rows, args[0])
			return nil
		},
	}
}

// newServeCmd creates the serve subcommand.
func newServeCmd(dataDir *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mirrored feeds over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(*dataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			// The server stays useful without remote credentials; only
			// the update endpoint needs them.
			src, err := newSource()
			if err != nil {
				log.Printf("Remote source not configured, update endpoint disabled: %v", err)
				src = nil
			}

			hub := api.NewRunHub()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go hub.Run(ctx)

			log.Printf("Serving on :%s (store: %s)", port, *dataDir)
			return api.NewServer(store, src, hub).ListenAndServe(port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", getPort(), "HTTP listen port")

	return cmd
}

// addAggregationFlags registers the period, unit, and tolerance flags
// shared by the aggregation commands.
func addAggregationFlags(cmd *cobra.Command, period, unit *string, tolerance *float64) {
	cmd.Flags().StringVar(period, "period", config.DefaultPeriod, "Aggregation period (day, week, month, or a duration)")
	cmd.Flags().StringVar(unit, "unit", config.DefaultEnergyUnit, "Energy unit (J, Wh, kWh)")
	cmd.Flags().Float64Var(tolerance, "tolerance", config.DefaultMissingTolerance, "Allowed fraction of missing samples per period")
}

// formatTime renders a unix timestamp for terminal output.
func formatTime(t int64) string {
	return time.Unix(t, 0).UTC().Format("2006-01-02 15:04:05")
}
