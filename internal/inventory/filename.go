// Package inventory reads and writes the local media library.
//
// Media files carry their provenance in the name:
//
//	<title>LM<category with / as _>ID_<seq>_[<video id>].mp4
//
// Older files only carry the trailing "_[<video id>].mp4" marker.
package inventory

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	simplePattern = regexp.MustCompile(`_\[(\w+)\]\.mp4$`)
	strictPattern = regexp.MustCompile(`(.+)LM(.+)ID_(\d+)_\[(\w+)\]\.mp4$`)

	categoryStrip = regexp.MustCompile(`[^\w\x{4e00}-\x{9fa5}-]`)
	titleReserved = strings.NewReplacer(
		"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
	)
)

// Parsed is the provenance encoded in a media filename.
type Parsed struct {
	Title    string
	Category string
	Seq      string
	VideoID  string
}

// VideoID returns the id marker of a media filename, legacy or current.
func VideoID(name string) (string, bool) {
	m := simplePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseFilename decodes a current-format media filename. The category's
// underscores become path separators; the title is kept verbatim.
func ParseFilename(name string) (Parsed, bool) {
	m := strictPattern.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, false
	}
	return Parsed{
		Title:    m[1],
		Category: strings.TrimSpace(strings.ReplaceAll(m[2], "_", "/")),
		Seq:      m[3],
		VideoID:  m[4],
	}, true
}

// CategoryForFilename turns "A/B C/D" into "A_BC_D".
func CategoryForFilename(category string) string {
	return categoryStrip.ReplaceAllString(strings.ReplaceAll(category, "/", "_"), "")
}

// SanitizeTitle replaces characters no common filesystem accepts. Spacing is
// kept so titles read back from disk rebuild the same name.
func SanitizeTitle(title string) string {
	return titleReserved.Replace(title)
}

// Filename builds the current-format media filename.
func Filename(title, category string, seq int, videoID string) string {
	return fmt.Sprintf("%sLM%sID_%d_[%s].mp4", SanitizeTitle(title), CategoryForFilename(category), seq, videoID)
}

var batchTitleStrip = regexp.MustCompile(`[^\w\x{4e00}-\x{9fa5}]`)

// CleanTitle reduces a title to word and CJK characters, at most 50 of them,
// for files saved outside a harvest run.
func CleanTitle(title string) string {
	if title == "" {
		title = "product"
	}
	runes := []rune(batchTitleStrip.ReplaceAllString(title, "_"))
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}

// BatchFilename names a file saved from a manual selection. Without a
// category it falls back to the legacy form that only carries the id.
func BatchFilename(title, category string, seq int, videoID string) string {
	cat := CategoryForFilename(category)
	if cat == "" {
		return fmt.Sprintf("%s_%d_[%s].mp4", CleanTitle(title), seq, videoID)
	}
	return fmt.Sprintf("%sLM%sID_%d_[%s].mp4", CleanTitle(title), cat, seq, videoID)
}
