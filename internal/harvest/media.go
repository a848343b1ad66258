package harvest

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

// saveMedia streams url straight into the library without buffering the
// whole file.
func saveMedia(ctx context.Context, lib *inventory.Library, media Media, day time.Time, name, url string) (string, error) {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := media.Download(ctx, url, pw)
		_ = pw.CloseWithError(err)
	}()

	path, err := lib.Save(ctx, day, name, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
	} else {
		_ = pr.Close()
	}
	<-done
	return path, err
}

// BatchItem is one record chosen for a manual download.
type BatchItem struct {
	Title  string
	Record types.ListingRecord
}

// BatchResult counts the outcome of a manual download.
type BatchResult struct {
	Downloaded int      `json:"downloaded"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Files      []string `json:"files"`
}

// Batch downloads the videos of hand-picked records into today's folder,
// skipping ids already anywhere in the library.
type Batch struct {
	Library *inventory.Library
	Media   Media
	Pacer   Pacer
	Pause   time.Duration
	Now     func() time.Time
	Log     *logrus.Entry
}

// Run downloads items. category names the files; empty uses the legacy form.
func (b *Batch) Run(ctx context.Context, category string, items []BatchItem) (*BatchResult, error) {
	pacer := b.Pacer
	if pacer == nil {
		pacer = TimerPacer{}
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	log := b.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	scan, err := b.Library.Scan(ctx)
	if err != nil {
		return nil, err
	}
	existing := scan.GlobalIDs
	day := now()

	res := &BatchResult{Files: []string{}}
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = listing.Title(item.Record)
		}
		videos := listing.Videos(item.Record)
		for i, v := range videos {
			if existing.Has(v.ID) {
				res.Skipped++
				continue
			}
			name := inventory.BatchFilename(title, category, i+1, v.ID)
			path, err := saveMedia(ctx, b.Library, b.Media, day, name, v.URL)
			if err != nil {
				if isFatal(ctx, err) {
					return res, err
				}
				res.Failed++
				log.WithError(err).WithField("video_id", v.ID).Warn("download failed")
			} else {
				res.Downloaded++
				res.Files = append(res.Files, path)
				existing.Add(v.ID)
			}
			if i < len(videos)-1 {
				if err := pacer.Sleep(ctx, b.Pause); err != nil {
					return res, err
				}
			}
		}
	}
	return res, nil
}
