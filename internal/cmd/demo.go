package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/roomkit/internal/app"
	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/feed"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted, headless walk through the event bus",
	Long: `Run a scripted scenario against a fresh bus and print what happens:
ordered fan-out, once listeners, failure isolation, waiting with a timeout,
and a few simulated syncs. Ends with the bus counters.`,
	RunE: runDemoCmd,
}

var (
	demoSyncs   int
	demoLog     bool
	demoTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoSyncs, "syncs", 3, "number of simulated syncs to run")
	demoCmd.Flags().BoolVar(&demoLog, "log", false, "write the bus log to the log directory")
	demoCmd.Flags().DurationVar(&demoTimeout, "timeout", 0, "timeout for the wait that is expected to expire (default bus.wait_timeout_ms)")
}

func runDemoCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	cfg.Logging.Enabled = demoLog

	var rt app.Runtime
	fxApp := app.New(app.Params{Config: cfg, Viper: viper.GetViper(), LogDir: config.LogDir()}, app.Populate(&rt))
	if err := fxApp.Start(cmd.Context()); err != nil {
		return errors.Wrap(err, "failed to start")
	}
	defer func() { _ = fxApp.Stop(context.Background()) }()

	return runDemo(cmd.Context(), cmd.OutOrStdout(), rt, demoSyncs, demoTimeout)
}

// fallbackTimeout bounds the expiring wait when bus.wait_timeout_ms is 0.
const fallbackTimeout = 50 * time.Millisecond

// runDemo drives the scenario and writes a transcript to w. A non-positive
// timeout uses bus.wait_timeout_ms.
func runDemo(ctx context.Context, w io.Writer, rt app.Runtime, syncs int, timeout time.Duration) error {
	bus := rt.Bus
	wait := rt.Config.Bus.WaitTimeout()
	if timeout <= 0 {
		timeout = wait
	}
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	step := func(format string, args ...any) {
		fmt.Fprintf(w, "==> "+format+"\n", args...)
	}
	say := func(format string, args ...any) {
		fmt.Fprintf(w, "    "+format+"\n", args...)
	}

	step("fan-out to %s in subscription order", event.RoomSelected)
	var order []string
	for _, name := range []string{"sidebar", "timeline", "profile"} {
		name := name
		off, err := event.SelectTopic.Subscribe(bus, func(sel event.RoomSelection) error {
			order = append(order, name+"("+sel.RoomID+")")
			return nil
		})
		if err != nil {
			return err
		}
		defer off()
	}
	event.SelectTopic.Publish(bus, event.RoomSelection{RoomID: "!abc:matrix.org"})
	say("delivered: %s", strings.Join(order, ", "))

	step("once listener on %s", event.AuthLoginSuccess)
	logins := 0
	if _, err := event.LoginTopic.Subscribe(bus, func(event.Login) error {
		logins++
		return nil
	}, event.WithOnce()); err != nil {
		return err
	}
	event.LoginTopic.Publish(bus, event.Login{UserID: "@you:matrix.org"})
	event.LoginTopic.Publish(bus, event.Login{UserID: "@you:matrix.org"})
	say("published twice, invoked %d time(s), %d listener(s) left", logins, bus.ListenerCount(event.AuthLoginSuccess))

	step("failure isolation on %s", event.ProfileUpdated)
	reached := false
	offs := []func(){}
	for _, fn := range []func(any) error{
		func(any) error { return errors.New("avatar fetch failed") },
		func(any) error { panic("nil profile") },
		func(any) error { reached = true; return nil },
	} {
		off, err := bus.SubscribeFunc(event.ProfileUpdated, fn)
		if err != nil {
			return err
		}
		offs = append(offs, off)
	}
	heard := event.ProfileTopic.Publish(bus, event.Profile{UserID: "@you:matrix.org", DisplayName: "you"})
	say("publish returned %t, last listener reached: %t", heard, reached)
	for _, off := range offs {
		off()
	}

	step("wait for %s with a %s timeout", event.SyncError, timeout)
	pending, err := bus.WaitFor(event.SyncError, timeout)
	if err != nil {
		return err
	}
	_, err = pending.Await(ctx)
	say("state %s, timed out: %t, listeners left: %d", pending.State(), errors.Is(err, errors.ErrTimeout), bus.ListenerCount(event.SyncError))

	step("wait for %s resolved by a later publish", event.AuthLoginSuccess)
	pending, err = bus.WaitFor(event.AuthLoginSuccess, wait)
	if err != nil {
		return err
	}
	go event.LoginTopic.Publish(bus, event.Login{UserID: "@you:matrix.org", DeviceID: "DEMO"})
	payload, err := pending.Await(ctx)
	if err != nil {
		return err
	}
	say("resolved with %+v", payload)

	if syncs > 0 {
		step("%d simulated sync(s)", syncs)
		var lines []string
		off, err := bus.SubscribeFunc(event.SyncComplete, func(p any) error {
			lines = append(lines, "complete "+p.(event.SyncStatus).NextBatch)
			return nil
		})
		if err != nil {
			return err
		}
		defer off()
		offErr, err := event.SyncFailTopic.Subscribe(bus, func(f event.SyncFailure) error {
			lines = append(lines, fmt.Sprintf("error %v", f.Err))
			return nil
		})
		if err != nil {
			return err
		}
		defer offErr()

		f := feed.New(bus, rt.Config.Rooms, feed.WithLogger(rt.Logger), feed.WithFailEvery(3))
		for i := 0; i < syncs; i++ {
			f.Step()
		}
		for _, line := range lines {
			say("%s", line)
		}
	}

	writeStats(w, rt.Stats.Snapshot())
	return nil
}

func writeStats(w io.Writer, s event.StatsSnapshot) {
	fmt.Fprintln(w, "==> bus counters")
	fmt.Fprintf(w, "    published=%d unheard=%d delivered=%d failed=%d panicked=%d cap_warnings=%d\n",
		s.Published, s.Unheard, s.Delivered, s.Failed, s.Panicked, s.CapWarnings)

	names := make([]string, 0, len(s.PublishedByName))
	for name := range s.PublishedByName {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-20s %d\n", name, s.PublishedByName[name])
	}
}
