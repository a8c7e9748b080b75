package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	derrors "github.com/vango-dev/derive/internal/errors"
	"github.com/vango-dev/derive/pkg/derive"
	"github.com/vango-dev/derive/pkg/store"
	"github.com/vango-dev/derive/pkg/tick"
)

type benchOptions struct {
	Depth    int
	Updates  int
	Batch    int
	Fast     bool
	JSON     bool
	Observer derive.Observer
}

type benchResult struct {
	Depth         int           `json:"depth"`
	Updates       int           `json:"updates"`
	Batch         int           `json:"batch"`
	Flushes       int           `json:"flushes"`
	Recomputes    uint64        `json:"recomputes"`
	Notifications int           `json:"notifications"`
	Final         int           `json:"final"`
	Elapsed       time.Duration `json:"elapsedNs"`
	PerFlush      time.Duration `json:"perFlushNs"`
}

func benchCmd() *cobra.Command {
	opts := benchOptions{Depth: 10, Updates: 10000, Batch: 1}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark a chain of derived stores",
		Long: `Build a chain base -> d1 -> ... -> dN, write to the base store and
flush the scheduler, and report how many recomputes and notifications the
engine performed.

With --batch greater than one, that many writes are issued before each flush;
every store in the chain should still recompute once per flush.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runBench(opts)
			if err != nil {
				return err
			}
			return printBench(cmd.OutOrStdout(), res, opts.JSON)
		},
	}

	cmd.Flags().IntVar(&opts.Depth, "depth", opts.Depth, "Number of derived stores in the chain")
	cmd.Flags().IntVar(&opts.Updates, "updates", opts.Updates, "Number of writes to the base store")
	cmd.Flags().IntVar(&opts.Batch, "batch", opts.Batch, "Writes per flush")
	cmd.Flags().BoolVar(&opts.Fast, "fast", false, "Create stores on the fast path")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the result as JSON")

	return cmd
}

func runBench(opts benchOptions) (benchResult, error) {
	if opts.Depth < 1 || opts.Updates < 1 || opts.Batch < 1 {
		return benchResult{}, derrors.Newf(derrors.CategoryCLI,
			"depth, updates and batch must be positive (got %d, %d, %d)", opts.Depth, opts.Updates, opts.Batch)
	}

	loop := tick.NewLoop()
	schedOpts := []derive.SchedulerOption{}
	if opts.Observer != nil {
		schedOpts = append(schedOpts, derive.WithObserver(opts.Observer))
	}
	sched := derive.NewScheduler(loop, schedOpts...)

	storeOpts := []derive.Option{derive.WithScheduler(sched)}
	if opts.Fast {
		storeOpts = append(storeOpts, derive.WithFastPath())
	}

	base := store.New(0).Named("base")
	chain := make([]*derive.Derived[int], 0, opts.Depth)
	var prev store.Source[int] = base
	for i := 0; i < opts.Depth; i++ {
		src := prev
		d := derive.New(func(a *derive.Accessor) int {
			return derive.Get(a, src) + 1
		}, append(storeOpts, derive.WithName(fmt.Sprintf("d%d", i+1)))...)
		chain = append(chain, d)
		prev = d
	}

	tail := chain[len(chain)-1]
	notifications := 0
	unsub := tail.Subscribe(func(int, int) { notifications++ })
	defer unsub()

	res := benchResult{Depth: opts.Depth, Updates: opts.Updates, Batch: opts.Batch}
	start := time.Now()
	for i := 1; i <= opts.Updates; i++ {
		base.SetState(i)
		if i%opts.Batch == 0 || i == opts.Updates {
			loop.Drain()
			res.Flushes++
		}
	}
	res.Elapsed = time.Since(start)

	for _, d := range chain {
		res.Recomputes += d.DeriveCount() - 1
	}
	res.Notifications = notifications
	res.Final = tail.GetState()
	if res.Flushes > 0 {
		res.PerFlush = res.Elapsed / time.Duration(res.Flushes)
	}

	if want := opts.Updates + opts.Depth; res.Final != want {
		return res, derrors.Newf(derrors.CategoryCLI, "chain settled to %d, want %d", res.Final, want)
	}
	return res, nil
}

func printBench(w io.Writer, res benchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "  Chain depth:    %d\n", res.Depth)
	fmt.Fprintf(w, "  Writes:         %d (%d per flush)\n", res.Updates, res.Batch)
	fmt.Fprintf(w, "  Flushes:        %d\n", res.Flushes)
	fmt.Fprintf(w, "  Recomputes:     %d\n", res.Recomputes)
	fmt.Fprintf(w, "  Notifications:  %d\n", res.Notifications)
	fmt.Fprintf(w, "  Elapsed:        %s\n", res.Elapsed)
	fmt.Fprintf(w, "  Per flush:      %s\n", res.PerFlush)
	return nil
}
