package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/internal/simvm"
)

var statsObjects int

func init() {
	cmd := newStatsCmd()
	cmd.Flags().IntVar(&statsObjects, "objects", 0, "Allocate this many short-lived objects first")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show heap layout and statistics",
		Long: `The stats command builds a heap from the resolved options and shows
its space ranges, side metadata layout, page budget and counters.

Example:
  heapctl stats
  heapctl stats --heap-size 256M --objects 10000
  heapctl stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
	return cmd
}

func runStats() error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	vm, err := simvm.New(opts)
	if err != nil {
		return err
	}
	defer vm.Close()

	if statsObjects > 0 {
		w := workload{threads: 1, objects: statsObjects, live: 16, refs: 1, minSize: 8, maxSize: 64, seed: 1}
		if err := w.run(vm); err != nil {
			return err
		}
	}

	mm := vm.MMTK()
	st := mm.Stats()
	if jsonOut {
		return st.WriteJSON(os.Stdout)
	}

	p := mm.Plan()
	printInfo("\nHeap Statistics: %s\n", st.Plan)
	printInfo("%s\n\n", strings.Repeat("=", 40))

	printInfo("Layout:\n")
	printInfo("  Reserved: %s at %s\n", formatBytes(st.ReservedBytes), p.Region().Start())
	for _, r := range p.Ranges() {
		printInfo("  %-9s %s-%s (%s)\n", r.Name, r.Start, r.End(), formatBytes(r.Extent))
	}
	printInfo("  Side metadata: %s\n", formatBytes(p.Metadata().SizeBytes()))
	for _, s := range p.Metadata().Specs() {
		printVerbose("    %s\n", s)
	}

	printInfo("\nBudget:\n")
	printInfo("  Pages: %d used of %d (%s of %s)\n",
		st.PagesUsed, st.BudgetPages, formatBytes(st.UsedBytes()), formatBytes(st.BudgetBytes()))
	printInfo("  Mapped chunks: %d\n", st.MappedChunks)
	for _, sp := range st.Spaces {
		printInfo("  %-9s %d pages, %d blocks (%d empty)\n", sp.Name, sp.ReservedPages, sp.Blocks, sp.EmptyBlocks)
	}

	printInfo("\nCollections: %d\n", st.GCCount)
	printInfo("  Status: %s\n", st.Status)
	printInfo("  Allocations: %d (%d fast path)\n", st.Alloc.AllocCalls, st.Alloc.FastPathHits)
	return nil
}
