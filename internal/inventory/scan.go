package inventory

import (
	"context"
	"io/fs"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/types"
)

// Result is the outcome of scanning a media library.
type Result struct {
	// Queue holds one entry per (title, category) in first-encountered order.
	Queue []types.WorkQueueEntry `json:"queue" yaml:"queue"`
	// GlobalIDs holds every video id found on disk, in any filename format.
	GlobalIDs *types.IDSet `json:"globalExistingIds" yaml:"-"`
	// Files counts the .mp4 files visited.
	Files int `json:"files" yaml:"files"`
}

// Scan walks fsys recursively and rebuilds the work queue from media filenames.
// Unreadable directories are logged and skipped.
func Scan(ctx context.Context, fsys fs.FS, log *logrus.Entry) (*Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	res := &Result{Queue: []types.WorkQueueEntry{}, GlobalIDs: types.NewIDSet()}
	index := make(map[[2]string]int)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == "." {
				return err
			}
			log.WithError(err).WithField("path", p).Warn("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".mp4") {
			return nil
		}
		res.Files++

		name := d.Name()
		if id, ok := VideoID(name); ok {
			res.GlobalIDs.Add(id)
		}
		parsed, ok := ParseFilename(name)
		if !ok {
			return nil
		}
		key := [2]string{parsed.Title, parsed.Category}
		i, seen := index[key]
		if !seen {
			i = len(res.Queue)
			index[key] = i
			res.Queue = append(res.Queue, types.WorkQueueEntry{
				Title:       parsed.Title,
				Category:    parsed.Category,
				ExistingIDs: types.NewIDSet(),
				Path:        dirSegments(p),
			})
		}
		res.Queue[i].ExistingIDs.Add(parsed.VideoID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"entries": len(res.Queue),
		"videos":  res.GlobalIDs.Len(),
		"files":   res.Files,
	}).Info("library scanned")
	return res, nil
}

func dirSegments(p string) []string {
	dir := path.Dir(p)
	if dir == "." {
		return []string{}
	}
	return strings.Split(dir, "/")
}
