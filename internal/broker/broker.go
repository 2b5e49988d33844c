// Package broker turns symbolic command keys plus typed named parameters into
// fully validated argv lists and executes them. It is the single chokepoint:
// no caller-supplied value reaches a subprocess without passing through
// exactly one typed validator and the command whitelist.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/dplaneos/dplaned/internal/shared"
	"github.com/dplaneos/dplaned/internal/whitelist"
)

// Timeouts per operation class. Commands touching hardware can hang on bad
// disks, so nothing runs without a deadline.
const (
	TimeoutFast   = 10 * time.Second // status checks, list operations
	TimeoutMedium = 60 * time.Second // snapshot, property set, config reload
	TimeoutSlow   = 5 * time.Minute  // pool create/destroy, send/receive
)

// CommandSpec declares the ordered parameter list and timeout for one key.
type CommandSpec struct {
	Key     string
	Params  []ParamSpec
	Timeout time.Duration
}

// Result carries the sanitized output and exit code of an execution.
type Result struct {
	Output   string
	ExitCode int
}

// Runner abstracts subprocess execution so tests never spawn processes.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, path string, args []string) ([]byte, int, error)
}

// ExecObserver records execution outcomes for metrics.
type ExecObserver interface {
	ObserveCommand(command, outcome string)
}

// Service resolves, validates and executes whitelisted commands.
type Service struct {
	registry *whitelist.Registry
	specs    map[string]CommandSpec
	runner   Runner
	logger   *slog.Logger
	sudoPath string // when set, every command is executed through sudo
	observer ExecObserver
}

// Option customizes Service construction.
type Option func(*Service)

// WithRunner replaces the subprocess runner (tests).
func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithSudo prefixes every execution with the given sudo binary.
func WithSudo(path string) Option {
	return func(s *Service) { s.sudoPath = path }
}

// WithObserver wires an execution metrics observer.
func WithObserver(o ExecObserver) Option {
	return func(s *Service) { s.observer = o }
}

// NewService constructs a broker over the given whitelist registry.
func NewService(registry *whitelist.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		specs:    defaultSpecs(),
		runner:   execRunner{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute renders and runs the command identified by key. Every parameter
// value is validated by its declared type; the rendered argv is then checked
// against the whitelist before any process is spawned. Output is passed
// through the secret sanitizer before being returned.
func (s *Service) Execute(ctx context.Context, key string, params map[string]string) (Result, error) {
	spec, ok := s.specs[key]
	if !ok {
		s.observe(key, "rejected")
		return Result{}, fmt.Errorf("%w: %s", shared.ErrNotWhitelisted, key)
	}
	cmd, ok := s.registry.Lookup(key)
	if !ok {
		s.observe(key, "rejected")
		return Result{}, fmt.Errorf("%w: %s", shared.ErrNotWhitelisted, key)
	}

	args := append([]string(nil), cmd.AllowedArgs...)
	for _, p := range spec.Params {
		value, present := params[p.Name]
		if !present || value == "" {
			if p.Optional {
				continue
			}
			s.observe(key, "rejected")
			return Result{}, fmt.Errorf("%w: missing required parameter %q for %s", shared.ErrValidation, p.Name, key)
		}
		tokens, err := renderParam(p.Type, value)
		if err != nil {
			s.observe(key, "rejected")
			return Result{}, err
		}
		args = append(args, tokens...)
	}

	if err := s.registry.Validate(key, args); err != nil {
		s.observe(key, "rejected")
		return Result{}, err
	}

	path := cmd.Path
	argv := args
	if s.sudoPath != "" {
		argv = append([]string{path}, args...)
		path = s.sudoPath
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = TimeoutMedium
	}

	start := time.Now()
	output, exitCode, err := s.runner.Run(ctx, timeout, path, argv)
	sanitized := whitelist.SanitizeOutput(string(output))
	if err != nil {
		s.observe(key, "error")
		s.logger.Error("command execution failed",
			slog.String("command", key),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return Result{Output: sanitized, ExitCode: exitCode}, err
	}

	outcome := "ok"
	if exitCode != 0 {
		outcome = "nonzero_exit"
	}
	s.observe(key, outcome)
	s.logger.Info("command executed",
		slog.String("command", key),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", time.Since(start)))
	return Result{Output: sanitized, ExitCode: exitCode}, nil
}

func (s *Service) observe(command, outcome string) {
	if s.observer != nil {
		s.observer.ObserveCommand(command, outcome)
	}
}

// execRunner spawns one subprocess per invocation. Processes are never pooled
// or reused; a deadline overrun kills the process group via CommandContext.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, timeout time.Duration, path string, args []string) ([]byte, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, args...)
	output, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return output, -1, fmt.Errorf("command timed out after %v: %s %s", timeout, path, strings.Join(args, " "))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit is an outcome, not a spawn failure.
			return output, exitErr.ExitCode(), nil
		}
		return output, -1, err
	}
	return output, 0, nil
}
