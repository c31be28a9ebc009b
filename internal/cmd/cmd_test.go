package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/roomkit/internal/app"
	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/event"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func setupConfigHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "roomkit", "config.yaml")
}

func newRuntime(t *testing.T) app.Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Enabled = false

	var rt app.Runtime
	fxApp := app.New(app.Params{Config: cfg}, app.Populate(&rt))
	if err := fxApp.Start(context.Background()); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(func() { _ = fxApp.Stop(context.Background()) })
	return rt
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "roomkit" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "roomkit")
	}

	expectedCmds := []string{"run", "demo", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, name := range expectedCmds {
		if !cmdMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}

	configSubs := make(map[string]bool)
	for _, cmd := range configCmd.Commands() {
		configSubs[cmd.Name()] = true
	}
	for _, name := range []string{"show", "init", "path"} {
		if !configSubs[name] {
			t.Errorf("expected config subcommand %q not found", name)
		}
	}
}

func TestConfigPath(t *testing.T) {
	want := setupConfigHome(t)

	out, err := executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if strings.TrimSpace(out) != want {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(out), want)
	}
}

func TestConfigInit(t *testing.T) {
	path := setupConfigHome(t)
	t.Cleanup(func() { configInitForce = false })

	out, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output %q should mention %s", out, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	for _, want := range []string{"# roomkit configuration", "max_listeners: 10", "theme: default", "!abc:matrix.org"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q", want)
		}
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail without --force")
	}
	if _, err := executeCommand(rootCmd, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	setupConfigHome(t)

	out, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"# Config file:", "bus:", "max_listeners:", "rooms:"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRequiresTerminal(t *testing.T) {
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = orig })

	_, err := executeCommand(rootCmd, "run")
	if !errors.Is(err, errNotTerminal) {
		t.Errorf("run error = %v, want %v", err, errNotTerminal)
	}
}

func TestRunDemo(t *testing.T) {
	rt := newRuntime(t)

	var buf bytes.Buffer
	if err := runDemo(context.Background(), &buf, rt, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("runDemo failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"delivered: sidebar(!abc:matrix.org), timeline(!abc:matrix.org), profile(!abc:matrix.org)",
		"published twice, invoked 1 time(s), 0 listener(s) left",
		"publish returned true, last listener reached: true",
		"state rejected, timed out: true, listeners left: 0",
		"resolved with",
		"complete s1",
		"complete s2",
		"error timeout error: sync",
		"==> bus counters",
		"failed=2 panicked=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("demo output missing %q:\n%s", want, out)
		}
	}

	// Everything the demo subscribed is gone afterwards.
	for _, name := range event.Catalog() {
		if n := rt.Bus.ListenerCount(name); n != 0 {
			t.Errorf("ListenerCount(%q) = %d after demo, want 0", name, n)
		}
	}
}

func TestRunDemo_DefaultTimeoutFromConfig(t *testing.T) {
	rt := newRuntime(t)
	rt.Config.Bus.WaitTimeoutMs = 20

	var buf bytes.Buffer
	if err := runDemo(context.Background(), &buf, rt, 0, 0); err != nil {
		t.Fatalf("runDemo failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "with a 20ms timeout") {
		t.Errorf("demo should wait bus.wait_timeout_ms by default:\n%s", out)
	}
	if !strings.Contains(out, "timed out: true") {
		t.Errorf("demo wait should expire:\n%s", out)
	}
}

func TestRunDemo_ZeroWaitTimeoutFallsBack(t *testing.T) {
	rt := newRuntime(t)
	rt.Config.Bus.WaitTimeoutMs = 0

	var buf bytes.Buffer
	if err := runDemo(context.Background(), &buf, rt, 0, 0); err != nil {
		t.Fatalf("runDemo failed: %v", err)
	}
	if !strings.Contains(buf.String(), "with a 50ms timeout") {
		t.Errorf("demo should fall back to 50ms when waits are unbounded:\n%s", buf.String())
	}
}

func TestConfigShow_InvalidConfig(t *testing.T) {
	setupConfigHome(t)
	t.Setenv("ROOMKIT_TUI_THEME", "neon")

	_, err := executeCommand(rootCmd, "config", "show")
	if err == nil {
		t.Fatal("config show should fail for an invalid theme")
	}
	if !strings.HasPrefix(err.Error(), "invalid configuration: ") {
		t.Errorf("error = %q, want it wrapped with %q", err.Error(), "invalid configuration")
	}
}

type fakeClient struct {
	err   error
	delay time.Duration
	ran   bool
}

func (f *fakeClient) Run(ctx context.Context) error {
	f.ran = true
	select {
	case <-time.After(f.delay):
		return f.err
	case <-ctx.Done():
		return nil
	}
}

func TestRunClient_StopsFeedWhenClientExits(t *testing.T) {
	rt := newRuntime(t)

	loggedOut, err := rt.Bus.WaitFor(event.AuthLogout, 0)
	if err != nil {
		t.Fatal(err)
	}

	ui := &fakeClient{delay: 20 * time.Millisecond}
	if err := runClient(context.Background(), rt, ui); err != nil {
		t.Fatalf("runClient() = %v, want nil", err)
	}
	if !ui.ran {
		t.Error("client never ran")
	}
	if loggedOut.State() != event.StateResolved {
		t.Errorf("feed did not sign out, wait state = %s", loggedOut.State())
	}
}

func TestRunClient_ReturnsClientError(t *testing.T) {
	rt := newRuntime(t)
	boom := errors.New("terminal gone")

	err := runClient(context.Background(), rt, &fakeClient{err: boom})
	if !errors.Is(err, boom) {
		t.Errorf("runClient() = %v, want %v", err, boom)
	}
}

func TestRunClient_ContextCancel(t *testing.T) {
	rt := newRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := runClient(ctx, rt, &fakeClient{delay: time.Minute}); err != nil {
		t.Errorf("runClient() = %v, want nil", err)
	}
}
