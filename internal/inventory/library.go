package inventory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/types"
)

// DayLayout names the dated subfolders media is written into.
const DayLayout = "2006-01-02"

// Library is the granted media root.
type Library struct {
	grant types.DirectoryCapability
	log   *logrus.Entry
}

// NewLibrary wraps a directory grant.
func NewLibrary(grant types.DirectoryCapability, log *logrus.Entry) *Library {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Library{grant: grant, log: log.WithField("root", grant.Root)}
}

// Root returns the library directory.
func (l *Library) Root() string {
	return l.grant.Root
}

// Check verifies the grant is still usable.
func (l *Library) Check() error {
	return l.grant.Check()
}

// Scan rebuilds the work queue from the files under the root.
func (l *Library) Scan(ctx context.Context) (*Result, error) {
	if err := l.Check(); err != nil {
		return nil, err
	}
	return Scan(ctx, os.DirFS(l.grant.Root), l.log)
}

// Save streams r into <root>/<day>/<name> through a temp file and rename, so a
// crash never leaves a partial file under the final name. It returns the
// written path.
func (l *Library) Save(ctx context.Context, day time.Time, name string, r io.Reader) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media filename %q", name)
	}
	if err := l.Check(); err != nil {
		return "", err
	}
	dir := filepath.Join(l.grant.Root, day.Format(DayLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create day folder: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	final := filepath.Join(dir, name)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	l.log.WithField("file", final).Debug("media saved")
	return final, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
