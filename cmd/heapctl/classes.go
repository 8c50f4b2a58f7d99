package main

import (
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap/alloc"
	"github.com/joshuapare/heapkit/internal/format"
)

func init() {
	rootCmd.AddCommand(newClassesCmd())
}

func newClassesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Show the size-class table",
		Long: `The classes command prints every size class of the free-list
allocator: the request sizes it serves, its cell size and how many cells a
64 KiB block holds.

Example:
  heapctl classes
  heapctl classes --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
	return cmd
}

func runClasses() error {
	classes := alloc.Classes()

	if jsonOut {
		w := jwriter.NewStreamingWriter(os.Stdout, 1024)
		arr := w.Array()
		for _, c := range classes {
			obj := arr.Object()
			obj.Name("class").Int(c.Class)
			obj.Name("minBytes").Int(int(c.MinBytes))
			obj.Name("cellSize").Int(int(c.CellSize))
			obj.Name("cellsPerBlock").Int(c.CellsPerBlock)
			obj.End()
		}
		arr.End()
		if err := w.Flush(); err != nil {
			return err
		}
		printInfo("\n")
		return w.Error()
	}

	printInfo("%-6s %-16s %-9s %s\n", "Class", "Request bytes", "Cell", "Cells/block")
	for _, c := range classes {
		printInfo("%-6d %-16s %-9d %d\n", c.Class, printer.Sprintf("%d-%d", c.MinBytes, c.CellSize), c.CellSize, c.CellsPerBlock)
	}
	printVerbose("\n%d classes, block %s, max small object %s\n",
		len(classes), formatBytes(format.BytesInBlock), formatBytes(alloc.MaxSmallBytes))
	return nil
}
