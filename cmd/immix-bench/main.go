// Command immix-bench drives allocation/collection cycles against a
// configurable runtime and prints the resulting heap and collector
// statistics, in place of the compiler-frontend tools this tree's cmd/
// directory used to hold.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/orizon-lang/rcimmix/internal/gc"
)

func main() {
	var (
		heapSize    = flag.Int("heap", int(gc.DefaultHeapSize), "heap size in bytes")
		blockSize   = flag.Int("block", int(gc.DefaultBlockSize), "block size in bytes")
		lineSize    = flag.Int("line", int(gc.DefaultLineSize), "line size in bytes")
		configPath  = flag.String("config", "", "path to a key=value config override file")
		allocations = flag.Int("allocations", 10000, "number of objects to allocate over the run")
		liveSetSize = flag.Int("live-set", 256, "number of rooted objects kept alive at any one time")
		maxObject   = flag.Int("max-object", 512, "maximum object size in bytes (uniformly sampled)")
		members     = flag.Int("members", 2, "reference slots per allocated object")
		forceEvac   = flag.Bool("evac", false, "force every collection to consider evacuation")
		forceCycle  = flag.Bool("cycle", false, "force every collection to run a full tracing cycle")
		everyN      = flag.Int("collect-every", 64, "run a collection after this many allocations")
		seed        = flag.Int64("seed", 1, "PRNG seed for the allocation/reference pattern")
		jsonOutput  = flag.Bool("json", false, "print the final report as JSON")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drives allocation/collection cycles against an rcimmix heap.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := gc.LoadConfig(*configPath)
	if err != nil {
		exitWithError("loading config: %v", err)
	}

	cfg.HeapSize = uintptr(*heapSize)
	cfg.BlockSize = uintptr(*blockSize)
	cfg.LineSize = uintptr(*lineSize)

	rt, err := gc.Create(cfg, "", nil)
	if err != nil {
		exitWithError("creating runtime: %v", err)
	}
	defer func() {
		if err := rt.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "destroy: %v\n", err)
		}
	}()

	report := runWorkload(rt, workloadOptions{
		allocations: *allocations,
		liveSetSize: *liveSetSize,
		maxObject:   *maxObject,
		members:     *members,
		forceEvac:   *forceEvac,
		forceCycle:  *forceCycle,
		everyN:      *everyN,
		seed:        *seed,
	})

	if *jsonOutput {
		printJSON(report)
	} else {
		printReport(report)
	}
}

type workloadOptions struct {
	allocations int
	liveSetSize int
	maxObject   int
	members     int
	forceEvac   bool
	forceCycle  bool
	everyN      int
	seed        int64
}

// report summarizes a completed workload run: the live-set churn it put
// through the collector, how many collections ran of each kind, and the
// runtime's final heap statistics.
type report struct {
	Allocations int                `json:"allocations"`
	Failed      int                `json:"failed_allocations"`
	Collections map[string]int     `json:"collections"`
	Stats       gc.RuntimeStats    `json:"stats"`
	Metrics     map[string]float64 `json:"metrics"`
	Elapsed     time.Duration      `json:"elapsed_ns"`
}

func runWorkload(rt *gc.Runtime, opts workloadOptions) report {
	rng := rand.New(rand.NewSource(opts.seed))

	// liveSet is pre-sized and never reallocated: each slot's address is
	// registered once as a static root, so overwriting a slot to simulate the
	// mutator dropping one reference and taking up another is picked up on
	// the next collection without any push/pop bookkeeping (a zero slot is
	// simply not yet a valid object address and is filtered out by
	// Stack.EnumerateRoots).
	liveSet := make([]uintptr, opts.liveSetSize)
	for i := range liveSet {
		rt.SetStaticRoot(&liveSet[i])
	}

	filled := 0
	collections := map[string]int{}
	failed := 0

	start := time.Now()

	for i := 0; i < opts.allocations; i++ {
		size := uintptr(1 + rng.Intn(opts.maxObject))
		if minSize := gc.HeaderSize + uintptr(opts.members)*gc.Word; size < minSize {
			size = minSize
		}
		size = (size + gc.Word - 1) &^ (gc.Word - 1)
		rtti := &gc.GCRTTI{ObjectSize: size, Members: opts.members}

		addr, ok := rt.Allocate(rtti)
		if !ok {
			failed++

			continue
		}

		if filled < opts.liveSetSize {
			liveSet[filled] = addr
			filled++
		} else {
			victim := rng.Intn(len(liveSet))
			liveSet[victim] = addr
		}

		if opts.everyN > 0 && (i+1)%opts.everyN == 0 {
			kind := rt.Collect(opts.forceEvac, opts.forceCycle)
			collections[kind.String()]++
		}
	}

	kind := rt.Collect(opts.forceEvac, opts.forceCycle)
	collections[kind.String()]++

	return report{
		Allocations: opts.allocations,
		Failed:      failed,
		Collections: collections,
		Stats:       rt.Stats(),
		Metrics:     rt.MetricsSnapshot(),
		Elapsed:     time.Since(start),
	}
}

func printReport(r report) {
	fmt.Printf("allocations:       %d (failed %d)\n", r.Allocations, r.Failed)
	fmt.Printf("elapsed:           %v\n", r.Elapsed)
	fmt.Printf("collections:\n")

	for _, kind := range []string{"rc", "rc-evac", "immix", "immix-evac"} {
		if n, ok := r.Collections[kind]; ok {
			fmt.Printf("  %-12s %d\n", kind, n)
		}
	}

	fmt.Printf("total blocks:      %d\n", r.Stats.TotalBlocks)
	fmt.Printf("available blocks:  %d\n", r.Stats.AvailableBlocks)
	fmt.Printf("evac headroom:     %d\n", r.Stats.EvacHeadroom)
	fmt.Printf("large objects:     %d\n", r.Stats.LargeObjects)
}

func printJSON(r report) {
	fmt.Printf("{\n")
	fmt.Printf("  \"allocations\": %d,\n", r.Allocations)
	fmt.Printf("  \"failed_allocations\": %d,\n", r.Failed)
	fmt.Printf("  \"elapsed_ns\": %d,\n", r.Elapsed.Nanoseconds())
	fmt.Printf("  \"total_blocks\": %d,\n", r.Stats.TotalBlocks)
	fmt.Printf("  \"available_blocks\": %d,\n", r.Stats.AvailableBlocks)
	fmt.Printf("  \"evac_headroom\": %d,\n", r.Stats.EvacHeadroom)
	fmt.Printf("  \"large_objects\": %d,\n", r.Stats.LargeObjects)
	fmt.Printf("  \"collections\": {")

	first := true
	for _, kind := range []string{"rc", "rc-evac", "immix", "immix-evac"} {
		n, ok := r.Collections[kind]
		if !ok {
			continue
		}

		if !first {
			fmt.Printf(",")
		}

		fmt.Printf("\n    %q: %d", kind, n)
		first = false
	}

	fmt.Printf("\n  }\n}\n")
}

func exitWithError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "immix-bench: "+format+"\n", args...)
	os.Exit(1)
}
