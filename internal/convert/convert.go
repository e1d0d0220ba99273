package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
)

// Error reports a failed external encode. The original file is untouched and
// the temporary output has been removed.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CommitError reports a failed atomic publish of a finished encode.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Path, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Settings holds the knobs the converter needs from configuration.
type Settings struct {
	Binary          string
	EncodeTimeout   time.Duration
	Threads         int
	NVENCPreset     string
	CPUPreset       string
	Bitrate720p     string
	Bitrate1080p    string
	Bitrate2160p    string
	KeepSubtitles   bool
	TargetContainer string
}

// Converter executes REPACK and TRANSCODE decisions through ffmpeg and
// atomically publishes the result over the original file.
type Converter struct {
	settings Settings
	exec     Executor
	logger   *slog.Logger
}

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// New constructs a converter.
func New(settings Settings, logger *slog.Logger, opts ...Option) *Converter {
	if strings.TrimSpace(settings.Binary) == "" {
		settings.Binary = "ffmpeg"
	}
	c := &Converter{
		settings: settings,
		exec:     commandExecutor{},
		logger:   logging.NewComponentLogger(logger, "convert"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert runs the decision against the source file and returns the final
// committed path. On any failure the original file is left untouched and the
// temporary output is removed.
func (c *Converter) Convert(ctx context.Context, meta probe.Metadata, dec decide.Decision) (string, error) {
	if dec.Action == decide.Skip {
		return meta.Path, nil
	}

	ext := containerExt(c.settings.TargetContainer)
	tempPath := TempPath(meta.Path, ext)
	finalPath := FinalPath(meta.Path, ext)

	// The rename-over-original commit only works inside one filesystem.
	// Refuse up front rather than fall back to a non-atomic copy.
	if err := ensureSameFilesystem(meta.Path, finalPath); err != nil {
		return "", &CommitError{Path: meta.Path, Err: err}
	}

	// A stale temp from a crashed run must not confuse output verification.
	if err := removeIfExists(tempPath); err != nil {
		return "", &Error{Path: meta.Path, Err: err}
	}

	if c.settings.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.EncodeTimeout)
		defer cancel()
	}

	args := BuildArgs(meta, dec, c.settings, tempPath)
	c.logger.Info("launching ffmpeg",
		logging.String("action", dec.Action.String()),
		logging.String("input", meta.Path),
		logging.String("output", tempPath),
	)

	stderr, err := c.exec.Run(ctx, c.settings.Binary, args)
	if err != nil {
		_ = removeIfExists(tempPath)
		if detail := tail(stderr, 400); detail != "" {
			return "", &Error{Path: meta.Path, Err: fmt.Errorf("%w: %s", err, detail)}
		}
		return "", &Error{Path: meta.Path, Err: err}
	}

	if err := verifyOutput(tempPath); err != nil {
		_ = removeIfExists(tempPath)
		return "", &Error{Path: meta.Path, Err: err}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = removeIfExists(tempPath)
		return "", &CommitError{Path: meta.Path, Err: err}
	}

	if finalPath != meta.Path {
		if err := os.Remove(meta.Path); err != nil {
			return "", &CommitError{Path: meta.Path, Err: fmt.Errorf("remove replaced source: %w", err)}
		}
	}

	return finalPath, nil
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max:]
}
