// Package feed simulates a homeserver sync loop. It publishes the events a
// real client would produce after each /sync response so the views can be
// driven without a network.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/logging"
	"github.com/Iron-Ham/roomkit/internal/util"
)

const (
	defaultInterval  = 2 * time.Second
	defaultUserID    = "@you:matrix.org"
	defaultFailEvery = 7

	// longPoll is the server-side wait a simulated sync times out on
	longPoll = 30 * time.Second
	// giveUpEvery makes every n-th failure permanent
	giveUpEvery = 3
)

var errNoResponse = errors.New("homeserver did not respond")

// script is cycled through by successive syncs.
var script = []struct {
	sender string
	body   string
}{
	{"@alice:matrix.org", "morning all"},
	{"@bob:matrix.org", "did anyone look at the sync timeout?"},
	{"@carol:example.org", "it is the 30s long-poll, works as intended"},
	{"@alice:matrix.org", "I'll bump the retry backoff"},
	{"@dave:example.org", "lunch?"},
	{"@bob:matrix.org", "pushed a fix, please review"},
}

// Feed publishes simulated sync results on a bus.
type Feed struct {
	bus    *event.Bus
	rooms  []config.RoomConfig
	logger *logging.Logger
	clock  clock.Clock

	userID    string
	interval  time.Duration
	failEvery int

	mu       sync.Mutex
	seq      int
	failures int
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock sets the clock driving the sync interval.
func WithClock(c clock.Clock) Option {
	return func(f *Feed) { f.clock = c }
}

// WithInterval sets the time between syncs. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithUserID sets the signed-in user.
func WithUserID(id string) Option {
	return func(f *Feed) { f.userID = id }
}

// WithFailEvery makes every n-th sync fail with a retryable error.
// 0 disables failures.
func WithFailEvery(n int) Option {
	return func(f *Feed) {
		if n >= 0 {
			f.failEvery = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// New creates a Feed for the given rooms.
func New(bus *event.Bus, rooms []config.RoomConfig, opts ...Option) *Feed {
	f := &Feed{
		bus:       bus,
		rooms:     rooms,
		logger:    logging.NopLogger(),
		clock:     clock.New(),
		userID:    defaultUserID,
		interval:  defaultInterval,
		failEvery: defaultFailEvery,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithComponent("feed")
	return f
}

// Run signs in, then syncs every interval until ctx is done, and signs out.
// It always returns nil once ctx is canceled.
func (f *Feed) Run(ctx context.Context) error {
	f.Login()

	ticker := f.clock.Ticker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Logout("shutdown")
			return nil
		case <-ticker.C:
			f.Step()
		}
	}
}

// Login publishes auth:login_success followed by the user's profile.
func (f *Feed) Login() {
	f.logger.Info("signed in", "user_id", f.userID)
	event.LoginTopic.Publish(f.bus, event.Login{
		UserID:   f.userID,
		DeviceID: "ROOMKIT" + uuid.NewString()[:8],
	})
	event.ProfileTopic.Publish(f.bus, event.Profile{
		UserID:      f.userID,
		DisplayName: util.Localpart(f.userID),
	})
}

// Logout publishes auth:logout.
func (f *Feed) Logout(reason string) {
	f.logger.Info("signed out", "user_id", f.userID, "reason", reason)
	event.LogoutTopic.Publish(f.bus, event.Logout{UserID: f.userID, Reason: reason})
}

// Step performs one simulated sync. A successful sync delivers one scripted
// message and then sync:complete; a failed one publishes sync:error only.
// Every third failure is reported as not retryable.
func (f *Feed) Step() {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	failing := f.failEvery > 0 && seq%f.failEvery == 0
	if failing {
		f.failures++
	}
	failures := f.failures
	f.mu.Unlock()

	if failing {
		err := errors.NewTimeoutError("sync", longPoll).WithCause(errNoResponse)
		if failures%giveUpEvery == 0 {
			err = err.WithRetryable(false)
		}
		retryable := errors.IsRetryable(err)
		f.logger.Warn("sync failed", "seq", seq, "error", err.Error(), "retryable", retryable)
		event.SyncFailTopic.Publish(f.bus, event.SyncFailure{Err: err, Retryable: retryable})
		return
	}

	if len(f.rooms) > 0 {
		line := script[(seq-1)%len(script)]
		room := f.rooms[(seq-1)%len(f.rooms)]
		event.MessageTopic.Publish(f.bus, event.Message{
			RoomID:    room.ID,
			EventID:   "$" + uuid.NewString(),
			Sender:    line.sender,
			Body:      line.body,
			Timestamp: f.clock.Now(),
		})
	}

	status := event.SyncStatus{NextBatch: fmt.Sprintf("s%d", seq), Rooms: len(f.rooms)}
	f.logger.Debug("sync complete", "seq", seq, "next_batch", status.NextBatch)
	event.SyncTopic.Publish(f.bus, status)
}

// Seq returns the number of syncs performed.
func (f *Feed) Seq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}
