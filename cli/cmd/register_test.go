package cmd

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/config"
	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/lode"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/server/servertest"
	"github.com/justapithecus/canv/types"
)

// --- Config precedence tests ---

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues are registered and marked as explicitly set (c.IsSet returns
// true). defaultFlags are registered with default values only.
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"server": "tcp://cli:1"}, nil)
	if got := resolveString(c, "server", "tcp://config:2"); got != "tcp://cli:1" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"server": ""})
	if got := resolveString(c, "server", "tcp://config:2"); got != "tcp://config:2" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"server-log": "warning"})
	if got := resolveString(c, "server-log", ""); got != "warning" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestConfigVal_NilConfig(t *testing.T) {
	if got := configVal(nil, func(c *config.Config) string { return c.Server }); got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
}

func TestConfigVal_NonNil(t *testing.T) {
	cfg := &config.Config{InFlight: 4}
	if got := configVal(cfg, func(c *config.Config) int { return c.InFlight }); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
}

func TestResolveInt(t *testing.T) {
	newCtx := func(set string) *cli.Context {
		app := cli.NewApp()
		app.Flags = []cli.Flag{&cli.IntFlag{Name: "in-flight", Value: 10}}
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Int("in-flight", 10, "")
		if set != "" {
			_ = fs.Set("in-flight", set)
		}
		return cli.NewContext(app, fs, nil)
	}

	if got := resolveInt(newCtx("3"), "in-flight", 6); got != 3 {
		t.Errorf("CLI set: got %d, want 3", got)
	}
	if got := resolveInt(newCtx(""), "in-flight", 6); got != 6 {
		t.Errorf("config fallback: got %d, want 6", got)
	}
	if got := resolveInt(newCtx(""), "in-flight", 0); got != 10 {
		t.Errorf("flag default: got %d, want 10", got)
	}
}

func TestResolveBool_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "storage-s3-path-style"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("storage-s3-path-style", false, "")
	_ = fs.Set("storage-s3-path-style", "false")
	c := cli.NewContext(app, fs, nil)

	if resolveBool(c, "storage-s3-path-style", true) {
		t.Error("expected explicit CLI false to win over config true")
	}
}

func TestResolveDuration(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "receive-timeout"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("receive-timeout", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveDuration(c, "receive-timeout", 7*time.Second); got != 7*time.Second {
		t.Errorf("config fallback: got %v, want 7s", got)
	}

	_ = fs.Set("receive-timeout", "30s")
	if got := resolveDuration(c, "receive-timeout", 7*time.Second); got != 30*time.Second {
		t.Errorf("CLI set: got %v, want 30s", got)
	}
}

func TestTCPAddress(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"tcp://127.0.0.1:8080", "127.0.0.1:8080", true},
		{"tcp://server.local:1234", "server.local:1234", true},
		{"tcp://server.local", "", false},
		{"tcp://:1234", "", false},
		{"http://server:80", "", false},
		{"/opt/service/bin/video-server", "", false},
		{"video-server", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := tcpAddress(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("tcpAddress(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestServerMode(t *testing.T) {
	if got := serverMode("tcp://localhost:9"); got != "remote" {
		t.Errorf("serverMode(tcp) = %q, want remote", got)
	}
	if got := serverMode("/usr/bin/video-server"); got != "managed" {
		t.Errorf("serverMode(path) = %q, want managed", got)
	}
}

func writeReference(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("ref"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCheckReferences(t *testing.T) {
	dir := t.TempDir()
	good := writeReference(t, dir, "area.r3db")
	wrongSuffix := writeReference(t, dir, "area.db")

	got, err := checkReferences([]string{good})
	if err != nil {
		t.Fatalf("checkReferences(good): %v", err)
	}
	if !filepath.IsAbs(got[0]) {
		t.Errorf("reference not absolute: %q", got[0])
	}

	for _, bad := range []string{wrongSuffix, filepath.Join(dir, "missing.r3db"), dir} {
		if _, err := checkReferences([]string{good, bad}); err == nil {
			t.Errorf("checkReferences(%q) should fail", bad)
		}
	}
}

// registerFixture is an input pair, a reference and an output directory.
type registerFixture struct {
	input  string
	ref    string
	outDir string
}

func newRegisterFixture(t *testing.T, frames int) registerFixture {
	t.Helper()
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return registerFixture{
		input:  writePair(t, dir, "flight", frames),
		ref:    writeReference(t, dir, "area.r3db"),
		outDir: outDir,
	}
}

func TestRegisterAction_ArgumentErrors(t *testing.T) {
	fx := newRegisterFixture(t, 2)

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "missing input",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir},
			wantMsg: "exactly one input",
		},
		{
			name:    "input does not exist",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, fx.input + ".gone"},
			wantMsg: "non-existing input file",
		},
		{
			name:    "missing server",
			args:    []string{"-r", fx.ref, "-o", fx.outDir, fx.input},
			wantMsg: "--server is required",
		},
		{
			name:    "missing reference",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-o", fx.outDir, fx.input},
			wantMsg: "--reference is required",
		},
		{
			name:    "bad reference",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.input, "-o", fx.outDir, fx.input},
			wantMsg: "does not have the suffix",
		},
		{
			name:    "out dir is a file",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.ref, fx.input},
			wantMsg: "not a valid output directory",
		},
		{
			name:    "out name suffix",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "-n", "out.ims", fx.input},
			wantMsg: "must have the suffix",
		},
		{
			name:    "output equals input",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", filepath.Dir(fx.input), fx.input},
			wantMsg: "cannot be the same as the input",
		},
		{
			name:    "in flight out of range",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "--in-flight", "15", fx.input},
			wantMsg: "--in-flight must be in [1, 14]",
		},
		{
			name:    "server log level",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "--server-log", "trace", fx.input},
			wantMsg: "--server-log must be one of",
		},
		{
			name:    "storage path without backend",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "--storage-path", fx.outDir, fx.input},
			wantMsg: "both --storage-backend and --storage-path",
		},
		{
			name:    "adapter without url",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "--adapter", "webhook", fx.input},
			wantMsg: "--adapter-url is required",
		},
		{
			name:    "malformed adapter header",
			args:    []string{"--server", "tcp://127.0.0.1:1", "-r", fx.ref, "-o", fx.outDir, "--adapter", "webhook", "--adapter-url", "http://x", "--adapter-header", "nokey", fx.input},
			wantMsg: "invalid --adapter-header",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(RegisterCommand())
			err := app.Run(append([]string{"canv", "register"}, tt.args...))
			if got := exitCode(err); got != exitConfigError {
				t.Fatalf("exit code = %d, want %d (err %v)", got, exitConfigError, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRegisterAction_ConfigFileNotFound(t *testing.T) {
	fx := newRegisterFixture(t, 1)
	app := newTestApp(RegisterCommand())
	err := app.Run([]string{"canv", "register", "--config", filepath.Join(fx.outDir, "nope.yaml"), fx.input})
	if got := exitCode(err); got != exitConfigError {
		t.Fatalf("exit code = %d, want %d (err %v)", got, exitConfigError, err)
	}
	if !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestRegisterAction_ServiceUnreachable(t *testing.T) {
	fx := newRegisterFixture(t, 2)

	// Reserve a port and release it so nothing listens there.
	svc := servertest.New()
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	addr := svc.Addr()
	_ = svc.Close()

	app := newTestApp(RegisterCommand())
	err := app.Run([]string{"canv", "register", "--quiet",
		"--server", "tcp://" + addr, "-r", fx.ref, "-o", fx.outDir, fx.input})
	if got := exitCode(err); got != exitServiceError {
		t.Fatalf("exit code = %d, want %d (err %v)", got, exitServiceError, err)
	}
	if _, statErr := os.Stat(filepath.Join(fx.outDir, "flight.canv")); !os.IsNotExist(statErr) {
		t.Errorf("partial output left behind: %v", statErr)
	}
}

func TestRegisterAction_EndToEnd(t *testing.T) {
	const frames = 5
	fx := newRegisterFixture(t, frames)
	storeDir := t.TempDir()

	svc := servertest.New()
	svc.Reverse = true
	svc.Fail = map[int64]string{2: "no match"}
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	app := newTestApp(RegisterCommand())
	err := app.Run([]string{"canv", "register", "--quiet",
		"--server", "tcp://" + svc.Addr(),
		"-r", fx.ref,
		"-o", fx.outDir,
		"-n", "registered.canv",
		"--in-flight", "2",
		"--receive-timeout", "2s",
		"--metrics-addr", "127.0.0.1:0",
		"--storage-backend", "fs",
		"--storage-path", storeDir,
		fx.input,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	outPath := filepath.Join(fx.outDir, "registered.canv")
	pb, err := container.OpenPlayback(outPath, log.Nop())
	if err != nil {
		t.Fatalf("OpenPlayback(output): %v", err)
	}
	defer func() { _ = pb.Close() }()

	if pb.FrameCount() != frames {
		t.Fatalf("FrameCount = %d, want %d", pb.FrameCount(), frames)
	}
	if rel := pb.Canv().CompanionPath(); rel != filepath.Join("..", "flight.ims") {
		t.Errorf("CompanionPath = %q, want ../flight.ims", rel)
	}
	for i := range frames {
		m, err := pb.Canv().Read(i)
		if err != nil {
			t.Fatalf("Read(%d): %v", i, err)
		}
		wantHeight := 100 + float64(i) + 1
		if i == 2 {
			wantHeight = 100 + float64(i)
		}
		if m.Cam.Pos[2] != wantHeight {
			t.Errorf("frame %d height = %v, want %v", i, m.Cam.Pos[2], wantHeight)
		}
	}

	history := pb.Canv().History()
	if len(history) != 2 || history[0].Pwin != "0.1.0" || history[1].Pwin != types.Version {
		t.Errorf("history = %+v, want inherited record then %s", history, types.Version)
	}

	ds, err := lode.NewReadDatasetFS(lode.DefaultDataset, storeDir)
	if err != nil {
		t.Fatalf("NewReadDatasetFS: %v", err)
	}
	summary, err := lode.QueryLatestSummary(context.Background(), ds, "", "flight.canv")
	if err != nil {
		t.Fatalf("QueryLatestSummary: %v", err)
	}
	if summary.Status != lode.RunStatusCompleted {
		t.Errorf("summary status = %q, want completed", summary.Status)
	}
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"FramesWritten", summary.FramesWritten, frames},
		{"FramesRegistered", summary.FramesRegistered, frames - 1},
		{"FramesFailed", summary.FramesFailed, 1},
		{"Window", summary.Window, 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if summary.MaxInFlight > 2 {
		t.Errorf("MaxInFlight = %d exceeds window 2", summary.MaxInFlight)
	}

	statsApp := newTestApp(StatsCommand())
	if err := statsApp.Run([]string{"canv", "stats", "--format", "json",
		"--storage-backend", "fs", "--storage-path", storeDir,
		"--run-id", summary.RunID}); err != nil {
		t.Errorf("stats: %v", err)
	}
}

func TestRegisterAction_ConfigProvidesRequiredFields(t *testing.T) {
	fx := newRegisterFixture(t, 3)

	svc := servertest.New()
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	cfgPath := filepath.Join(t.TempDir(), "canv.yaml")
	cfgBody := "server: tcp://" + svc.Addr() + "\n" +
		"references:\n  - " + fx.ref + "\n" +
		"out_dir: " + fx.outDir + "\n" +
		"in_flight: " + strconv.Itoa(3) + "\n" +
		"timeouts:\n  receive: 2s\n"
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(RegisterCommand())
	if err := app.Run([]string{"canv", "register", "--quiet", "--config", cfgPath, fx.input}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := container.ValidateCanv(filepath.Join(fx.outDir, "flight.canv"), log.Nop()); err != nil {
		t.Errorf("ValidateCanv(output): %v", err)
	}
}

func TestStatsAction_RequiresStorage(t *testing.T) {
	app := newTestApp(StatsCommand())
	err := app.Run([]string{"canv", "stats"})
	if got := exitCode(err); got != exitConfigError {
		t.Errorf("exit code = %d, want %d (err %v)", got, exitConfigError, err)
	}
}

func TestStatsAction_NoSummary(t *testing.T) {
	app := newTestApp(StatsCommand())
	err := app.Run([]string{"canv", "stats", "--format", "json",
		"--storage-backend", "fs", "--storage-path", t.TempDir()})
	if err == nil {
		t.Fatal("expected an error for an empty dataset")
	}
}
