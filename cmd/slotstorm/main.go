package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

type options struct {
	URL      string        `long:"url" description:"bookingd base URL" default:"http://127.0.0.1:8000" env:"SLOTSTORM_URL"`
	Resource int64         `long:"resource" short:"r" description:"resource id to attack" default:"1"`
	Users    int           `long:"users" short:"u" description:"number of concurrent users" default:"15"`
	Parallel int           `long:"parallel" short:"p" description:"max requests in flight (0 = all at once)" default:"0"`
	Reset    bool          `long:"reset" description:"reset the resource before the storm"`
	Capacity int           `long:"capacity" description:"capacity used with --reset" default:"5"`
	Timeout  time.Duration `long:"timeout" description:"per-request timeout" default:"10s"`
}

func main() {
	opts := options{}
	if _, err := flags.Parse(&opts); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	sum, err := run(context.Background(), os.Stdout, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️ Error: %v\n", err)
		os.Exit(2)
	}
	if sum.broken() {
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, opts options) (summary, error) {
	if opts.Users <= 0 {
		return summary{}, errors.New("--users must be > 0")
	}
	s := stormer{
		client:   &http.Client{Timeout: opts.Timeout},
		base:     opts.URL,
		resource: opts.Resource,
	}

	if opts.Reset {
		if err := s.reset(ctx, opts.Capacity); err != nil {
			return summary{}, err
		}
		fmt.Fprintf(out, "🧹 Resource %d reset. Max Slots: %d\n", opts.Resource, opts.Capacity)
	}

	fmt.Fprintf(out, "🔥 %d users are clicking the reserve button simultaneously!!!\n", opts.Users)

	started := time.Now()
	results := s.storm(ctx, opts.Users, opts.Parallel)
	sum := summary{Took: time.Since(started)}

	for _, a := range results {
		switch {
		case a.Err != nil:
			sum.Failed++
			fmt.Fprintf(out, "⚠️ User-%d: Error - %v\n", a.User, a.Err)
		case a.ok():
			sum.Success++
			fmt.Fprintf(out, "✅ User-%d: Success! (Reserved)\n", a.User)
		default:
			sum.Failed++
			fmt.Fprintf(out, "❌ User-%d: Failed (%s)\n", a.User, a.Detail)
		}
	}

	st, err := s.status(ctx)
	if err != nil {
		return sum, err
	}
	sum.Status = st
	sum.Exceeded = sum.Success > st.MaxSlots

	fmt.Fprintf(out, "⏱️ Total time: %.2fs\n", sum.Took.Seconds())
	fmt.Fprintf(out, "📊 %s: %d/%d booked, overbooked=%v, survivors=%v\n",
		st.Name, st.CurrentBookings, st.MaxSlots, st.IsOverbooked, st.Survivors)
	if sum.broken() {
		fmt.Fprintf(out, "💥 OVERBOOKED: %d successes for %d slots\n", sum.Success, st.MaxSlots)
	}
	return sum, nil
}
