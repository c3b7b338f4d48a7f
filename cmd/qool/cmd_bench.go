package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/user/qool/pkg/qool"
)

var (
	benchOps         int
	benchConcurrency int
	benchMix         float64
	benchPayload     int
	benchInMemory    bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure enqueue/dequeue throughput against a local queue",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchOps, "ops", 10000, "Total operations to run")
	benchCmd.Flags().IntVar(&benchConcurrency, "concurrency", 32, "Concurrent callers")
	benchCmd.Flags().Float64Var(&benchMix, "mix", 0.5, "Fraction of operations that are dequeues (0..1)")
	benchCmd.Flags().IntVar(&benchPayload, "payload", 128, "Payload size in bytes")
	benchCmd.Flags().BoolVar(&benchInMemory, "in-memory", false, "Run against an in-memory store instead of --data-dir")
	rootCmd.AddCommand(benchCmd)
}

type benchResult struct {
	lats     []time.Duration
	empty    int
	failures int
	elapsed  time.Duration
}

type benchRunSummary struct {
	opsPerSec float64
	avg       time.Duration
	p50       time.Duration
	p90       time.Duration
	p99       time.Duration
	min       time.Duration
	max       time.Duration
	stddev    time.Duration
	completed int
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchOps <= 0 || benchConcurrency <= 0 {
		return fmt.Errorf("ops and concurrency must be > 0")
	}
	if benchMix < 0 || benchMix > 1 {
		return fmt.Errorf("mix must be between 0 and 1")
	}

	runID := ulid.Make()
	return withQueue(qool.Options{InMemory: benchInMemory}, func(ctx context.Context, q *qool.Queue) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bench %s: %d ops, concurrency %d, mix %.2f, store %s\n",
			runID, benchOps, benchConcurrency, benchMix, storeBackend)

		r := benchRun(ctx, q, runID)
		benchPrintStats(out, r)

		s := q.Stats()
		fmt.Fprintf(out, "  batches: %d write, %d read, %d failed\n", s.WriteBatches, s.ReadBatches, s.FailedBatches)
		fmt.Fprintf(out, "  store:   %d scans, %d writes\n", s.StoreReads, s.StoreWrites)
		fmt.Fprintf(out, "  elided:  %d\n", s.Elided)
		fmt.Fprintf(out, "  empty:   %d dequeues\n", r.empty)
		if r.failures > 0 {
			return fmt.Errorf("%d operations failed", r.failures)
		}
		return nil
	})
}

func benchRun(ctx context.Context, q *qool.Queue, runID ulid.ULID) benchResult {
	var (
		mu  sync.Mutex
		res benchResult
		wg  sync.WaitGroup
	)
	jobs := make(chan bool, benchConcurrency)
	pad := make([]byte, max(benchPayload-len(runID.String())-1, 0))
	for i := range pad {
		pad[i] = 'x'
	}

	start := time.Now()
	for range benchConcurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dequeue := range jobs {
				t0 := time.Now()
				var (
					err error
					ok  = true
				)
				if dequeue {
					_, ok, err = q.Dequeue(ctx)
				} else {
					payload := append([]byte(ulid.Make().String()+":"), pad...)
					_, err = q.Enqueue(ctx, payload)
				}
				lat := time.Since(t0)

				mu.Lock()
				switch {
				case err != nil:
					res.failures++
				case !ok:
					res.empty++
				default:
					res.lats = append(res.lats, lat)
				}
				mu.Unlock()
			}
		}()
	}
	for range benchOps {
		jobs <- rand.Float64() < benchMix
	}
	close(jobs)
	wg.Wait()
	res.elapsed = time.Since(start)
	return res
}

func benchSummarize(r benchResult) benchRunSummary {
	slices.Sort(r.lats)
	n := len(r.lats)

	var sum time.Duration
	for _, l := range r.lats {
		sum += l
	}
	avg := sum / time.Duration(n)

	var variance float64
	for _, l := range r.lats {
		diff := float64(l - avg)
		variance += diff * diff
	}
	variance /= float64(n)

	return benchRunSummary{
		opsPerSec: float64(n) / r.elapsed.Seconds(),
		avg:       avg,
		p50:       r.lats[n*50/100],
		p90:       r.lats[n*90/100],
		p99:       r.lats[n*99/100],
		min:       r.lats[0],
		max:       r.lats[n-1],
		stddev:    time.Duration(math.Sqrt(variance)),
		completed: n,
	}
}

func benchPrintStats(w io.Writer, r benchResult) {
	if len(r.lats) == 0 {
		fmt.Fprintln(os.Stderr, "  no successful operations")
		return
	}
	s := benchSummarize(r)
	fmt.Fprintf(w, "  ops/sec: %.1f\n", s.opsPerSec)
	fmt.Fprintf(w, "  avg:     %s\n", s.avg.Round(time.Microsecond))
	fmt.Fprintf(w, "  p50:     %s\n", s.p50.Round(time.Microsecond))
	fmt.Fprintf(w, "  p90:     %s\n", s.p90.Round(time.Microsecond))
	fmt.Fprintf(w, "  p99:     %s\n", s.p99.Round(time.Microsecond))
	fmt.Fprintf(w, "  min:     %s\n", s.min.Round(time.Microsecond))
	fmt.Fprintf(w, "  max:     %s\n", s.max.Round(time.Microsecond))
	fmt.Fprintf(w, "  stddev:  %s\n", s.stddev.Round(time.Microsecond))
}
