package launch

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/talusfx/hab/pkg/errors"
)

// RandomVar selects the scratch directory naming strategy. Batch has
// no usable randomness of its own, so the wrapper scripts read the
// same variable.
const RandomVar = "HAB_RANDOM"

// Naming strategies for scratch directories. Anything else is treated
// as a command whose first output line names the directory.
const (
	// StrategyFast draws from the same 15 bit pool cmd's %RANDOM%
	// offers. Collisions retry.
	StrategyFast = "fast"
	// StrategySafe names directories with a random UUID.
	StrategySafe = "safe"
)

// mkdirAttempts bounds the fast strategy's collision retries.
const mkdirAttempts = 10

// Scratch allocates per-invocation directories for generated scripts.
// Every invocation gets its own so parallel hab processes on one
// machine never clobber each other's scripts.
type Scratch struct {
	// Root is the parent for new directories. Defaults to the system
	// temp dir.
	Root string

	// Strategy is fast, safe or a command line. Defaults to the
	// HAB_RANDOM environment variable, then safe.
	Strategy string

	// Logger receives allocation diagnostics. Defaults to
	// log.Default().
	Logger *log.Logger
}

func (s *Scratch) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}

func (s *Scratch) root() string {
	if s.Root == "" {
		return os.TempDir()
	}
	return s.Root
}

func (s *Scratch) strategy() string {
	if s.Strategy != "" {
		return s.Strategy
	}
	if v := os.Getenv(RandomVar); v != "" {
		return v
	}
	return StrategySafe
}

// Dir creates and returns a fresh scratch directory.
func (s *Scratch) Dir(ctx context.Context) (string, error) {
	strategy := s.strategy()
	switch strategy {
	case StrategySafe:
		return s.mkdir("hab~" + uuid.NewString())
	case StrategyFast:
		var lastErr error
		for i := 0; i < mkdirAttempts; i++ {
			dir, err := s.mkdir(fmt.Sprintf("hab~%04x", rand.Intn(0x8000)))
			if err == nil {
				return dir, nil
			}
			lastErr = err
			if !stderrors.Is(err, fs.ErrExist) {
				break
			}
		}
		return "", lastErr
	default:
		name, err := s.customName(ctx, strategy)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(name) {
			if err := os.MkdirAll(name, 0o700); err != nil {
				return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to create scratch dir")
			}
			return name, nil
		}
		return s.mkdir(name)
	}
}

func (s *Scratch) mkdir(name string) (string, error) {
	dir := filepath.Join(s.root(), name)
	if err := os.MkdirAll(s.root(), 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to create scratch root")
	}
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "unable to create scratch dir")
	}
	s.logger().Debug("allocated scratch dir", "dir", dir)
	return dir, nil
}

// customName runs a user-supplied command and takes the first line of
// its output as the directory name.
func (s *Scratch) customName(ctx context.Context, command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", errors.New(errors.ErrCodeInvalidInput, "empty %s command", RandomVar)
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "%s command %q failed", RandomVar, command)
	}
	name, _, _ := strings.Cut(out.String(), "\n")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "%s command %q produced no name", RandomVar, command)
	}
	return name, nil
}
