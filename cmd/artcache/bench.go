package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/remote/memstore"
)

type benchOptions struct {
	capacity    int
	preloadKeys int
	goroutines  int
	opsPerG     int
	mirror      bool
}

var benchOpts = benchOptions{
	capacity:    200000,
	preloadKeys: 100000,
	goroutines:  200,
	opsPerG:     5000,
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a concurrent read load test against one cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context(), cmd.OutOrStdout(), benchOpts)
	},
}

func init() {
	f := benchCmd.Flags()
	f.IntVar(&benchOpts.capacity, "capacity", benchOpts.capacity, "cache capacity")
	f.IntVar(&benchOpts.preloadKeys, "preload", benchOpts.preloadKeys, "keys written before the load test")
	f.IntVar(&benchOpts.goroutines, "goroutines", benchOpts.goroutines, "concurrent readers")
	f.IntVar(&benchOpts.opsPerG, "ops", benchOpts.opsPerG, "reads per goroutine")
	f.BoolVar(&benchOpts.mirror, "mirror", false, "mirror writes to an in-process remote store")
	rootCmd.AddCommand(benchCmd)
}

func runBench(ctx context.Context, out io.Writer, o benchOptions) error {
	d := demo{out: out}

	fmt.Fprintln(out, sectionStyle.Render("================ CACHE LOAD BENCHMARK ================="))
	d.line("Capacity", o.capacity)
	d.line("Preload Keys", o.preloadKeys)
	d.line("Goroutines", o.goroutines)
	d.line("Ops/Goroutine", o.opsPerG)
	d.line("Mirror", o.mirror)

	var opts []cache.Option
	if o.mirror {
		opts = append(opts, cache.WithRemote(memstore.New(nil)))
	}
	c, err := cache.New[int](cache.Config{
		Name:       "bench",
		Capacity:   o.capacity,
		DefaultTTL: time.Hour,
	}, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	keys := make([]string, o.preloadKeys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}

	start := time.Now()
	for i, k := range keys {
		c.Set(ctx, k, i)
	}
	d.line("Preload", time.Since(start).Round(time.Millisecond))

	for i := 0; i < 10000 && len(keys) > 0; i++ {
		c.Get(ctx, keys[i%len(keys)])
	}

	start = time.Now()

	wg := sync.WaitGroup{}
	wg.Add(o.goroutines)
	for i := 0; i < o.goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			if len(keys) == 0 {
				return
			}
			for j := 0; j < o.opsPerG; j++ {
				c.Get(ctx, keys[(id+j)%len(keys)])
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	totalOps := o.goroutines * o.opsPerG
	s := c.Stats()

	fmt.Fprintln(out)
	fmt.Fprintln(out, sectionStyle.Render("================ RESULTS ================="))
	d.line("Total Operations", totalOps)
	d.line("Total Time", duration)
	d.line("Throughput", fmt.Sprintf("%.2f ops/sec", float64(totalOps)/duration.Seconds()))
	d.line("Hits / Misses", fmt.Sprintf("%d / %d", s.Hits, s.Misses))
	d.line("Evictions", s.Evictions)
	return nil
}
