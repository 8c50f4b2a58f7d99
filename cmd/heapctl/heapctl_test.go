package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/options"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// runCLI executes heapctl with args after resetting every flag variable.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	verbose, quiet, jsonOut, logLevel = false, false, false, ""
	heapSize, gcThreads, stress, reclaim, optionSets = "", 0, "", false, nil
	runFlags = workload{threads: 2, objects: 100_000, live: 256, refs: 2, minSize: 8, maxSize: 256, seed: 1}
	statsObjects = 0

	rootCmd.SetArgs(args)
	return captureOutput(t, rootCmd.Execute)
}

func Test_Classes(t *testing.T) {
	out, err := runCLI(t, "classes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cells/block")
	assert.Contains(t, out, "8,192", "numbers are grouped")
}

func Test_ClassesJSON(t *testing.T) {
	out, err := runCLI(t, "classes", "--json")
	require.NoError(t, err)

	var classes []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &classes), out)
	require.Len(t, classes, 36)
	assert.EqualValues(t, 1, classes[0]["class"])
	assert.EqualValues(t, 8, classes[0]["cellSize"])
	assert.EqualValues(t, 8192, classes[35]["cellSize"])
	assert.EqualValues(t, 7, classes[35]["cellsPerBlock"])
}

func Test_Run(t *testing.T) {
	out, err := runCLI(t, "run",
		"--heap-size", "4M", "--gc-threads", "2",
		"--objects", "20000", "--live", "32", "--max-size", "512",
		"--large-every", "2000", "--immortal-every", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "Workload: 2 threads x 20,000 objects (40,000 total)")
	assert.Contains(t, out, "out of memory: 0")
	assert.Contains(t, out, "Last cycle #")
}

// Test_Run_SharesEmptyBlocks runs several threads over a heap that only
// works out when blocks emptied by one thread or size class are reused by
// another.
func Test_Run_SharesEmptyBlocks(t *testing.T) {
	out, err := runCLI(t, "run",
		"--heap-size", "16M", "--gc-threads", "2",
		"--threads", "4", "--objects", "50000", "--live", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "Workload: 4 threads x 50,000 objects (200,000 total)")
	assert.Contains(t, out, "out of memory: 0")
	assert.NotContains(t, out, "retained: 0\n")
}

func Test_RunJSON(t *testing.T) {
	out, err := runCLI(t, "run", "--json",
		"--heap-size", "4M", "--gc-threads", "2",
		"--threads", "1", "--objects", "5000", "--collect-every", "1000")
	require.NoError(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, "FreeListMarkSweep", st["plan"])
	assert.EqualValues(t, 0, st["mutators"], "threads exit before the report")
	gcs, ok := st["gcCount"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, gcs, float64(5))
	assert.EqualValues(t, 5, st["userTriggers"])
}

func Test_RunRejectsBadWorkload(t *testing.T) {
	_, err := runCLI(t, "run", "--min-size", "100", "--max-size", "10")
	require.Error(t, err)

	_, err = runCLI(t, "run", "--threads", "0")
	require.Error(t, err)
}

func Test_Stats(t *testing.T) {
	out, err := runCLI(t, "stats", "--heap-size", "8M", "--objects", "1000", "-v")
	require.NoError(t, err)
	for _, want := range []string{"Heap Statistics: FreeListMarkSweep", "ms", "immortal", "los", "Side metadata", "alloc(global"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "used of 2,048")
}

func Test_StatsJSON(t *testing.T) {
	out, err := runCLI(t, "stats", "--json", "--heap-size", "8M")
	require.NoError(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.EqualValues(t, 2048, st["budgetPages"])
	assert.EqualValues(t, 0, st["pagesUsed"])
}

func Test_LoadOptions(t *testing.T) {
	_, err := runCLI(t, "version")
	require.NoError(t, err)

	heapSize = "32M"
	gcThreads = 3
	stress = "1M"
	reclaim = true
	optionSets = []string{"ignore_system_gc=true"}
	opts, err := loadOptions()
	require.NoError(t, err)
	assert.Equal(t, uint64(32<<20), opts.HeapSize)
	assert.Equal(t, 3, opts.Threads)
	assert.Equal(t, uint64(1<<20), opts.StressFactor)
	assert.True(t, opts.ReclaimEmptyBlocks)
	assert.True(t, opts.IgnoreSystemGC)

	optionSets = []string{"nope=1"}
	_, err = loadOptions()
	assert.True(t, errors.Is(err, options.ErrUnknownOption))

	optionSets = []string{"heap_size"}
	_, err = loadOptions()
	assert.Error(t, err)
}

func Test_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "heapctl dev")
}

func Test_LogLevel(t *testing.T) {
	_, err := runCLI(t, "classes", "--log-level", "loud")
	require.Error(t, err)
	_, err = runCLI(t, "classes", "--log-level", "debug", "-q")
	require.NoError(t, err)
	_, err = runCLI(t, "version")
	require.NoError(t, err)
}
