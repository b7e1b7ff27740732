// Package atomicfile rewrites files that humans also edit by hand.
//
// Update never writes the target in place. The transformed content goes
// to a fresh temporary file next to the target, passes a series of
// guards, and only then is renamed over the original. If any guard
// rejects the content the original is untouched and the temporary file
// is removed. The guards, in order:
//
//  1. the original line count is recorded
//  2. the output is written to a unique temporary file
//  3. empty output from non-empty input is rejected
//  4. removing more lines than the caller's bound is rejected
//  5. an optional caller validator must accept the output
//
// WriteFile is the same temp-and-rename commit without the guards, for
// files verity owns outright (checkpoint, reports).
package atomicfile

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/verity/pkg/logging"
)

// DefaultMaxLinesRemoved is used when the caller passes a zero bound.
const DefaultMaxLinesRemoved = 100

// Layer names the guard that rejected an update.
type Layer string

const (
	LayerTransform    Layer = "transform"
	LayerEmptyOutput  Layer = "empty-output"
	LayerLinesRemoved Layer = "lines-removed"
	LayerValidation   Layer = "validation"
	LayerIO           Layer = "io"
)

var (
	ErrEmptyOutput         = errors.New("transform produced empty output from non-empty input")
	ErrTooManyLinesRemoved = errors.New("transform removed more lines than allowed")
	ErrInvalidOutput       = errors.New("transformed output failed validation")
)

// UpdateError reports which guard rejected an update.
type UpdateError struct {
	Path         string
	Layer        Layer
	LinesBefore  int
	LinesAfter   int
	LinesRemoved int
	Limit        int
	Err          error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update %s rejected at %s layer: %v", e.Path, e.Layer, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// Transform maps the current file content to the new content.
type Transform func(original []byte) ([]byte, error)

// Validator inspects the transformed content before it is committed.
type Validator func(updated []byte) error

// Result describes a committed update.
type Result struct {
	LinesBefore  int
	LinesAfter   int
	LinesRemoved int
	Changed      bool
}

type options struct {
	validate Validator
	logger   *slog.Logger
}

// Option configures Update.
type Option func(*options)

// WithValidator adds a final content check before the rename.
func WithValidator(v Validator) Option { return func(o *options) { o.validate = v } }

// WithLogger sets the logger that records committed updates.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Update applies transform to the file at path under the guards described
// in the package documentation. maxLinesRemoved <= 0 selects
// DefaultMaxLinesRemoved. Identical output is a no-op and skips the rename.
func Update(path string, maxLinesRemoved int, transform Transform, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.OrDiscard(o.logger)
	if maxLinesRemoved <= 0 {
		maxLinesRemoved = DefaultMaxLinesRemoved
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &UpdateError{Path: path, Layer: LayerIO, Err: err}
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return nil, &UpdateError{Path: path, Layer: LayerIO, Err: err}
	}
	before := CountLines(original)

	updated, err := transform(append([]byte(nil), original...))
	if err != nil {
		return nil, &UpdateError{Path: path, Layer: LayerTransform, LinesBefore: before, Err: err}
	}
	after := CountLines(updated)
	removed := RemovedLines(original, updated)
	fail := func(layer Layer, err error) (*Result, error) {
		return nil, &UpdateError{
			Path: path, Layer: layer, Err: err,
			LinesBefore: before, LinesAfter: after, LinesRemoved: removed, Limit: maxLinesRemoved,
		}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail(LayerIO, fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()
	if err := writeAndSync(tmpFile, updated, info.Mode().Perm()); err != nil {
		return fail(LayerIO, err)
	}

	if len(bytes.TrimSpace(updated)) == 0 && len(bytes.TrimSpace(original)) > 0 {
		return fail(LayerEmptyOutput, fmt.Errorf("%w (%d lines before)", ErrEmptyOutput, before))
	}
	if removed > maxLinesRemoved {
		return fail(LayerLinesRemoved, fmt.Errorf("%w: %d removed, limit %d", ErrTooManyLinesRemoved, removed, maxLinesRemoved))
	}
	if o.validate != nil {
		if err := o.validate(updated); err != nil {
			return fail(LayerValidation, fmt.Errorf("%w: %v", ErrInvalidOutput, err))
		}
	}

	res := &Result{LinesBefore: before, LinesAfter: after, LinesRemoved: removed, Changed: !bytes.Equal(original, updated)}
	if !res.Changed {
		return res, nil
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(LayerIO, fmt.Errorf("renaming into place: %w", err))
	}
	committed = true
	syncDir(filepath.Dir(path))

	log.Info("atomic update committed",
		"path", path,
		"lines_before", before,
		"lines_after", after,
		"lines_removed", removed,
	)
	return res, nil
}

// WriteFile atomically replaces path with data, creating parent
// directories as needed. Readers see either the old or the new content.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()
	if err := writeAndSync(tmpFile, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	success = true
	syncDir(dir)
	return nil
}

func writeAndSync(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return nil
}

// syncDir makes a rename durable. Errors are ignored: not every
// platform supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// CountLines counts lines; a final line without a newline still counts.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// RemovedLines counts lines of original that no longer appear in updated,
// treating both as multisets so a moved line is not counted as removed.
func RemovedLines(original, updated []byte) int {
	remaining := make(map[string]int)
	for _, l := range splitLines(updated) {
		remaining[l]++
	}
	removed := 0
	for _, l := range splitLines(original) {
		if remaining[l] > 0 {
			remaining[l]--
			continue
		}
		removed++
	}
	return removed
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := bytes.Split(bytes.TrimSuffix(data, []byte{'\n'}), []byte{'\n'})
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}
