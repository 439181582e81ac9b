package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/justapithecus/canv/log"
)

const (
	// DefaultStartupAttempts is how many times the address file is polled.
	DefaultStartupAttempts = 10
	// DefaultStartupInterval is the spacing between address file polls.
	DefaultStartupInterval = time.Second
	// DefaultServiceLogLevel is the service log severity when none is given.
	DefaultServiceLogLevel = "warning"
)

// Process is a started service process.
type Process interface {
	Start(ctx context.Context) error
	Kill() error
	Wait() (int, error)
}

// ProcessFactory creates a Process. Used for test injection.
type ProcessFactory func(binary string, args []string) Process

// ManagedOptions configures a privately started service.
type ManagedOptions struct {
	// Binary is the path to the service executable.
	Binary string
	// LogLevel is the service log severity (debug, info, warning, error).
	LogLevel string
	// Timeout bounds every send and receive once connected.
	Timeout time.Duration
	// StartupAttempts is the address file poll budget.
	StartupAttempts int
	// StartupInterval is the spacing between polls.
	StartupInterval time.Duration
	// ProcessFactory overrides process creation (for testing).
	// If nil, the binary is run with os/exec.
	ProcessFactory ProcessFactory
	// Logger receives lifecycle diagnostics. Nil means no logging.
	Logger *log.Logger
}

// serviceConfig is the configuration file handed to a managed service.
type serviceConfig struct {
	Address string            `json:"address"`
	Port    int               `json:"port"`
	Out     map[string]any    `json:"out"`
	Log     serviceLogConfig  `json:"log"`
	Beta    serviceBetaConfig `json:"beta"`
}

type serviceLogConfig struct {
	Level string `json:"level"`
}

type serviceBetaConfig struct {
	AddressFile string `json:"address-file"`
}

// serviceAddress is what the service publishes once it is listening.
type serviceAddress struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// managedProcess ties a running service to its scratch directory.
type managedProcess struct {
	proc    Process
	workDir string
	logger  *log.Logger
}

// StartManaged starts a private service and connects to it. The service is
// run as "<binary> run -c <config>", where the config names a side-channel
// address file. If the address is not published within the poll budget the
// process is killed and ErrStartup is returned.
func StartManaged(ctx context.Context, opts ManagedOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	attempts := opts.StartupAttempts
	if attempts <= 0 {
		attempts = DefaultStartupAttempts
	}
	interval := opts.StartupInterval
	if interval <= 0 {
		interval = DefaultStartupInterval
	}
	level := opts.LogLevel
	if level == "" {
		level = DefaultServiceLogLevel
	}

	workDir, err := os.MkdirTemp("", "canv-server-")
	if err != nil {
		return nil, fmt.Errorf("failed to create service work dir: %w", err)
	}
	addressFile := filepath.Join(workDir, "address.json")
	configFile := filepath.Join(workDir, "config.json")

	cfg := serviceConfig{
		Address: "localhost",
		Port:    0,
		Out:     map[string]any{},
		Log:     serviceLogConfig{Level: level},
		Beta:    serviceBetaConfig{AddressFile: addressFile},
	}
	data, err := json.Marshal(cfg)
	if err == nil {
		err = os.WriteFile(configFile, data, 0o600)
	}
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("failed to write service config: %w", err)
	}

	factory := opts.ProcessFactory
	if factory == nil {
		factory = NewExecProcess
	}
	proc := factory(opts.Binary, []string{"run", "-c", configFile})
	mp := &managedProcess{proc: proc, workDir: workDir, logger: logger}

	if err := proc.Start(ctx); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}
	logger.Info("started managed registration service", map[string]any{
		"binary":    opts.Binary,
		"config":    configFile,
		"log_level": level,
	})

	addr, err := pollAddress(ctx, addressFile, attempts, interval)
	if err != nil {
		logger.Error("managed registration service did not publish its address", map[string]any{
			"attempts": attempts,
			"error":    err.Error(),
		})
		_ = mp.stop()
		return nil, err
	}

	c, err := Dial(ctx, HostPort(addr.Address, addr.Port), Options{Timeout: opts.Timeout, Logger: logger})
	if err != nil {
		_ = mp.stop()
		return nil, err
	}
	c.proc = mp
	return c, nil
}

// pollAddress reads the address file until it holds a complete address.
func pollAddress(ctx context.Context, path string, attempts int, interval time.Duration) (*serviceAddress, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		addr, err := readAddress(path)
		if err == nil {
			return addr, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("%w: no address after %d attempts: %w", ErrStartup, attempts, lastErr)
}

func readAddress(path string) (*serviceAddress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var addr serviceAddress
	if err := json.Unmarshal(data, &addr); err != nil {
		return nil, fmt.Errorf("address file is incomplete: %w", err)
	}
	if addr.Address == "" || addr.Port <= 0 {
		return nil, errors.New("address file has no address")
	}
	return &addr, nil
}

// stop kills the process, reaps it, and removes the scratch directory.
func (m *managedProcess) stop() error {
	var errs []error
	if err := m.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("failed to kill service: %w", err))
	}
	code, err := m.proc.Wait()
	if err != nil {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(m.workDir); err != nil {
		errs = append(errs, err)
	}
	m.logger.Debug("managed registration service stopped", map[string]any{
		"exit_code": code,
	})
	return errors.Join(errs...)
}

// ExecProcess runs the service binary with os/exec.
type ExecProcess struct {
	binary string
	args   []string
	cmd    *exec.Cmd
}

// NewExecProcess is the default ProcessFactory.
func NewExecProcess(binary string, args []string) Process {
	return &ExecProcess{binary: binary, args: args}
}

// Start starts the process. Output is inherited from the caller.
func (p *ExecProcess) Start(ctx context.Context) error {
	p.cmd = exec.CommandContext(ctx, p.binary, p.args...)
	p.cmd.Stdout = os.Stderr
	p.cmd.Stderr = os.Stderr
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	return nil
}

// Wait waits for the process to exit and returns its exit code.
// A killed process reports -1 without an error.
func (p *ExecProcess) Wait() (int, error) {
	if p.cmd == nil {
		return 0, errors.New("service not started")
	}
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
		return -1, nil
	}
	return -1, fmt.Errorf("service wait failed: %w", err)
}

// Kill terminates the process.
func (p *ExecProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
