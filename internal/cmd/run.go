package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Iron-Ham/roomkit/internal/app"
	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/feed"
	"github.com/Iron-Ham/roomkit/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the terminal client",
	Long: `Start the terminal client with a simulated sync feed.

The room list, timeline and status bar are independent views that only
communicate through the event bus. Press enter to open a room, i to write,
q to quit.`,
	RunE: runRun,
}

var (
	runInterval  time.Duration
	runFailEvery int
	runUserID    string
)

// isTerminal is replaced in tests.
var isTerminal = term.IsTerminal

// errNotTerminal is returned by run when stdout cannot host the TUI.
var errNotTerminal = errors.New("run requires an interactive terminal; try 'roomkit demo'")

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runInterval, "interval", 2*time.Second, "time between simulated syncs")
	runCmd.Flags().IntVar(&runFailEvery, "fail-every", 7, "fail every n-th sync (0 = never)")
	runCmd.Flags().StringVar(&runUserID, "user", "@you:matrix.org", "signed-in user id")
}

func runRun(cmd *cobra.Command, args []string) error {
	if !isTerminal(int(os.Stdout.Fd())) {
		return errNotTerminal
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rt app.Runtime
	fxApp := app.New(app.Params{Config: cfg, Viper: viper.GetViper(), LogDir: config.LogDir()}, app.Populate(&rt))
	if err := fxApp.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start")
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}()

	return runClient(ctx, rt, tui.New(rt.Bus, cfg, rt.Logger))
}

// client is the part of tui.App runClient needs.
type client interface {
	Run(ctx context.Context) error
}

// runClient runs the client and the sync feed until the client exits or
// ctx is done. Whichever stops first stops the other.
func runClient(ctx context.Context, rt app.Runtime, ui client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f := feed.New(rt.Bus, rt.Config.Rooms,
		feed.WithLogger(rt.Logger),
		feed.WithInterval(runInterval),
		feed.WithFailEvery(runFailEvery),
		feed.WithUserID(runUserID),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return ui.Run(gctx)
	})
	g.Go(func() error {
		return f.Run(gctx)
	})
	return g.Wait()
}
