package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/config"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/types"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitRunFailed    = 1
	exitServiceError = 2
	exitConfigError  = 3
)

// configVal reads a value from an optional config file.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value when set on the command line, else
// the config value when non-empty, else the flag default.
func resolveString(c *cli.Context, name, fromConfig string) string {
	if c.IsSet(name) || fromConfig == "" {
		return c.String(name)
	}
	return fromConfig
}

func resolveInt(c *cli.Context, name string, fromConfig int) int {
	if c.IsSet(name) || fromConfig == 0 {
		return c.Int(name)
	}
	return fromConfig
}

func resolveBool(c *cli.Context, name string, fromConfig bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fromConfig || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, fromConfig time.Duration) time.Duration {
	if c.IsSet(name) || fromConfig == 0 {
		return c.Duration(name)
	}
	return fromConfig
}

func resolveStrings(c *cli.Context, name string, fromConfig []string) []string {
	if c.IsSet(name) || len(fromConfig) == 0 {
		return c.StringSlice(name)
	}
	return fromConfig
}

// commandLine reconstructs the invocation recorded in container histories.
func commandLine() string {
	return strings.Join(append([]string{"canv"}, os.Args[1:]...), " ")
}

// newLogger builds a stderr logger at the --log-level severity. An empty or
// unknown level falls back to warning.
func newLogger(c *cli.Context, meta *types.RunMeta) *log.Logger {
	lvl, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		lvl = log.WarnLevel
	}
	return log.NewLoggerWithLevel(meta, lvl)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// isStderrTTY checks if stderr is a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
