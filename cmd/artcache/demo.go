package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/internal/logging"
	"github.com/krisalay/artcache/remote/memstore"
	"github.com/krisalay/artcache/writepolicy"
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through cache behavior against an in-process remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

type demo struct {
	out io.Writer
}

func (d demo) section(n int, title string) {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, sectionStyle.Render(fmt.Sprintf("==================== %d) %s ====================", n, title)))
}

func (d demo) line(label string, v any) {
	fmt.Fprintf(d.out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-28s→", label)), valueStyle.Render(fmt.Sprint(v)))
}

func runDemo(ctx context.Context, out io.Writer) error {
	d := demo{out: out}

	// A mock clock lets the TTL section run without sleeping.
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	store := memstore.New(clk)
	store.Set(ctx, "a", []byte(`"alpha (from remote)"`), 0)

	c, err := cache.New[string](cache.Config{
		Name:       "demo",
		Capacity:   3,
		DefaultTTL: 5 * time.Minute,
		MirrorMode: writepolicy.ModeSync,
	},
		cache.WithClock(clk),
		cache.WithRemote(store),
		cache.WithLogger(logging.Logger(ctx)),
	)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, sectionStyle.Render("==================== SYSTEM BOOT ===================="))
	cfg := c.Config()
	d.line("EVICTION POLICY", cfg.Eviction)
	d.line("CAPACITY", fmt.Sprintf("%d keys", cfg.Capacity))
	d.line("DEFAULT TTL", cfg.DefaultTTL)
	d.line("MIRROR MODE", cfg.MirrorMode)

	d.section(1, "REMOTE FALL-THROUGH")
	v, ok := c.Get(ctx, "a")
	d.line("GET a", fmt.Sprintf("%q (found=%v, local entries=%d)", v, ok, c.Len()))

	d.section(2, "SET AND HIT")
	c.Set(ctx, "b", "beta")
	v, _ = c.Get(ctx, "b")
	d.line("GET b", v)
	d.line("REMOTE KEYS", store.Keys())

	d.section(3, "TTL EXPIRATION")
	c.SetWithTTL(ctx, "x", "temp-value", time.Second)
	ttl, _ := c.TTL("x")
	d.line("SET x", fmt.Sprintf("ttl=%s", ttl))
	clk.Add(time.Second)
	_, ok = c.Get(ctx, "x")
	d.line("GET x after 1s", fmt.Sprintf("found=%v", ok))

	d.section(4, "FIFO EVICTION")
	c.Clear(ctx)
	for _, k := range []string{"k1", "k2", "k3"} {
		c.Set(ctx, k, "v-"+k)
		clk.Add(time.Millisecond)
	}
	c.Get(ctx, "k1")
	d.line("READ k1, THEN SET k4", "reads do not protect k1")
	c.Set(ctx, "k4", "v-k4")
	d.line("KEYS (oldest first)", c.Keys())

	d.section(5, "GET OR SET")
	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrSet(ctx, "profile", func(context.Context) (string, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return "loaded profile", nil
			})
		}()
	}
	wg.Wait()
	v, _ = c.Get(ctx, "profile")
	d.line("GET profile", fmt.Sprintf("%q (producer calls=%d)", v, calls))

	_, err = c.GetOrSet(ctx, "broken", func(context.Context) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	d.line("FAILING PRODUCER", fmt.Sprintf("err=%v cached=%v", err, c.Has(ctx, "broken")))

	d.section(6, "DELETE")
	c.Delete(ctx, "k4")
	_, ok = c.Get(ctx, "k4")
	d.line("GET k4 after delete", fmt.Sprintf("found=%v", ok))

	s := c.Stats()
	fmt.Fprintln(out)
	fmt.Fprintln(out, sectionStyle.Render("==================== METRICS ===================="))
	d.line("HITS", s.Hits)
	d.line("MISSES", s.Misses)
	d.line("EVICTIONS", s.Evictions)
	d.line("EXPIRED", s.Expirations)
	d.line("REMOTE ERRORS", s.RemoteErrors)

	fmt.Fprintln(out)
	fmt.Fprintln(out, sectionStyle.Render("==================== SHUTDOWN ===================="))
	if err := c.Close(); err != nil {
		return err
	}
	d.line("SYSTEM", "cache closed cleanly")
	return nil
}
