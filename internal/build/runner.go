// Package build runs a site's build command before its assets are uploaded.
package build

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/static-site-cn/internal/errors"
)

// Spec describes one build.
type Spec struct {
	// Command is run through the shell with Dir as the working directory.
	Command string
	Dir     string
	// OutputDir is removed before the build when Purge is set.
	OutputDir   string
	Purge       bool
	Environment map[string]string
}

// Runner executes build commands with the parent's environment and stdio.
type Runner struct {
	Shell  string
	Stdout io.Writer
	Stderr io.Writer
	// Environ returns the base environment; defaults to os.Environ.
	Environ func() []string
}

func NewRunner() *Runner {
	return &Runner{
		Shell:   "sh",
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Environ: os.Environ,
	}
}

// Run builds the site. It blocks until the command exits.
func (r *Runner) Run(ctx context.Context, spec Spec) (err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Err(err).
			Str("dir", spec.Dir).
			Dur("duration", time.Since(begin)).
			Msg("Build completed")
	}(time.Now())

	if spec.Purge && spec.OutputDir != "" {
		if _, statErr := os.Stat(spec.OutputDir); statErr == nil {
			logger.Info().Str("output_dir", spec.OutputDir).Msg("Purging build output")
			if err := os.RemoveAll(spec.OutputDir); err != nil {
				return fmt.Errorf("failed to purge %s: %w", spec.OutputDir, err)
			}
		}
	}

	logger.Info().Str("dir", spec.Dir).Str("command", spec.Command).Msg("Building static site")

	cmd := exec.CommandContext(ctx, r.Shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Env = Environment(r.environ(), spec.Environment)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrBuildFailed, err)
	}
	return nil
}

func (r *Runner) environ() []string {
	if r.Environ == nil {
		return os.Environ()
	}
	return r.Environ()
}

// Environment appends overrides to base. exec keeps the last value of a
// duplicated key, so overrides win.
func Environment(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	for _, key := range slices.Sorted(maps.Keys(overrides)) {
		env = append(env, key+"="+overrides[key])
	}
	return env
}
