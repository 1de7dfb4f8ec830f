package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mt5-command-server/internal/procexec"
	"mt5-command-server/internal/scripts"

	"github.com/rs/zerolog"
)

// ErrScriptBusy is returned when another request held the script's lock for longer than LockTimeout.
var ErrScriptBusy = errors.New("script is busy")

// Config holds the external binaries and their time limits.
// LockTimeout bounds the wait for another request on the same script, 0 waits as long as the caller's ctx allows.
type Config struct {
	Compiler       string
	Terminal       string
	Launcher       []string
	CompileTimeout time.Duration
	ExecuteTimeout time.Duration
	LockTimeout    time.Duration
}

// Terminal drives the MT5 compiler and terminal for scripts held in a Store.
type Terminal struct {
	store  *scripts.Store
	runner procexec.Runner
	cfg    Config
	locks  *scriptLocks
}

func New(store *scripts.Store, runner procexec.Runner, cfg Config) *Terminal {
	return &Terminal{
		store:  store,
		runner: runner,
		cfg:    cfg,
		locks:  newScriptLocks(),
	}
}

// Upload writes the script and compiles it while holding the script's lock, reporting whether it compiled.
// Storage failures and lock timeouts are returned as errors, a failed compile is not.
func (t *Terminal) Upload(ctx context.Context, filename, content string) (bool, error) {
	if err := scripts.ValidateName(filename); err != nil {
		return false, err
	}

	release, err := t.lock(ctx, scripts.BaseName(filename))
	if err != nil {
		return false, err
	}
	defer release()

	path, err := t.store.Write(filename, content)
	if err != nil {
		return false, err
	}

	zerolog.Ctx(ctx).Info().Str("path", path).Msg("script uploaded")

	return t.compile(ctx, filename), nil
}

// lock waits for the script's lock, for at most LockTimeout.
func (t *Terminal) lock(ctx context.Context, name string) (func(), error) {
	waitCtx := ctx
	if t.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.cfg.LockTimeout)
		defer cancel()
	}

	release, err := t.locks.acquire(waitCtx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrScriptBusy, name)
	}
	return release, nil
}

func (t *Terminal) compile(ctx context.Context, filename string) bool {
	logger := zerolog.Ctx(ctx).With().Str("filename", filename).Logger()

	scriptPath, err := t.store.Path(filename)
	if err != nil {
		logger.Error().Err(err).Msg("compile failed")
		return false
	}

	result, err := t.runner.Run(ctx, t.command(t.cfg.Compiler, t.cfg.CompileTimeout, "/compile", scriptPath))
	return t.report(logger, "compile", result, err)
}

// Execute runs a compiled script on the terminal. The account is only used for logging.
// A missing artifact fails without starting a process. The error is non-nil only for an invalid name.
func (t *Terminal) Execute(ctx context.Context, scriptName, account string) (bool, error) {
	base := scripts.BaseName(scriptName)
	if err := scripts.ValidateName(base); err != nil {
		return false, err
	}

	logger := zerolog.Ctx(ctx).With().Str("script", base).Str("account", account).Logger()

	release, err := t.lock(ctx, base)
	if err != nil {
		logger.Warn().Err(err).Msg("execute skipped")
		return false, nil
	}
	defer release()

	artifact, exists, err := t.store.ArtifactExists(base)
	if err != nil {
		logger.Error().Err(err).Msg("execute failed")
		return false, nil
	}
	if !exists {
		logger.Warn().Str("artifact", artifact).Msg("compiled script not found")
		return false, nil
	}

	result, err := t.runner.Run(ctx, t.command(t.cfg.Terminal, t.cfg.ExecuteTimeout, "/script", artifact))
	return t.report(logger, "execute", result, err), nil
}

// command builds the argv, putting the optional launcher (for example wine) in front of the binary.
func (t *Terminal) command(binary string, timeout time.Duration, args ...string) procexec.Command {
	argv := make([]string, 0, len(t.cfg.Launcher)+1+len(args))
	argv = append(argv, t.cfg.Launcher...)
	argv = append(argv, binary)
	argv = append(argv, args...)

	return procexec.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Dir:     t.store.Dir(),
		Timeout: timeout,
	}
}

func (t *Terminal) report(logger zerolog.Logger, action string, result procexec.Result, err error) bool {
	switch {
	case err == nil && result.Success():
		logger.Info().Dur("duration", result.Duration).Msg(action + " succeeded")
		return true
	case err != nil:
		logger.Error().Err(err).Msg(action + " error")
		return false
	case result.TimedOut:
		logger.Error().Dur("duration", result.Duration).Str("stderr", result.Stderr).Msg(action + " timed out")
		return false
	default:
		logger.Warn().
			Int("exit_code", result.ExitCode).
			Dur("duration", result.Duration).
			Str("stdout", result.Stdout).
			Str("stderr", result.Stderr).
			Msg(action + " failed")
		return false
	}
}
