package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/heap/options"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string

	// Heap flags; empty or zero leaves the environment/default value
	heapSize   string
	gcThreads  int
	stress     string
	reclaim    bool
	optionSets []string
)

var printer = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Exercise and inspect the heapkit mark-sweep heap",
	Long: `heapctl drives a heapkit heap through a simulated runtime. It runs
synthetic allocation workloads, prints the size-class table and reports
heap layout and collection statistics.

Heap options are read from HEAPKIT_* environment variables first and then
from flags, e.g. HEAPKIT_HEAP_SIZE=128M or --set stress_factor=1M.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log to stderr at this level (debug, info, warn, error)")

	rootCmd.PersistentFlags().StringVar(&heapSize, "heap-size", "", "Heap budget, e.g. 64M")
	rootCmd.PersistentFlags().IntVar(&gcThreads, "gc-threads", 0, "GC worker threads")
	rootCmd.PersistentFlags().StringVar(&stress, "stress", "", "Collect after this many bytes of new pages")
	rootCmd.PersistentFlags().BoolVar(&reclaim, "reclaim", false, "Return empty blocks to the OS after sweep")
	rootCmd.PersistentFlags().
		StringArrayVar(&optionSets, "set", nil, "Set a heap option as name=value (repeatable)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging() error {
	if logLevel == "" {
		logger.Init(logger.Options{})
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return errors.Wrapf(err, "--log-level %q", logLevel)
	}
	logger.Init(logger.Options{Enabled: true, Level: level, JSON: jsonOut})
	return nil
}

// loadOptions resolves heap options from the environment and flags.
func loadOptions() (options.Options, error) {
	opts, err := options.FromEnv(options.EnvPrefix)
	if err != nil {
		return opts, err
	}

	sets := make([]string, 0, len(optionSets)+4)
	if heapSize != "" {
		sets = append(sets, "heap_size="+heapSize)
	}
	if gcThreads != 0 {
		sets = append(sets, fmt.Sprintf("threads=%d", gcThreads))
	}
	if stress != "" {
		sets = append(sets, "stress_factor="+stress)
	}
	if reclaim {
		sets = append(sets, "reclaim_empty_blocks=true")
	}
	sets = append(sets, optionSets...)

	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return opts, errors.Newf("--set %q: expected name=value", kv)
		}
		if err := opts.Set(name, value); err != nil {
			return opts, err
		}
	}
	return opts, opts.Validate()
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		printer.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		printer.Fprintf(os.Stdout, format, args...)
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
