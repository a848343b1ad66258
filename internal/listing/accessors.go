// Package listing reads provider listing records through prioritized accessor tables.
//
// The upstream payload is unversioned, so every concept (identity, title, media
// url, ...) is looked up through an ordered list of candidate field paths. The
// tables below are the single place those fallbacks are recorded.
package listing

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/compass-harvester/internal/types"
)

// Path is a field path into a decoded record. Numeric segments index arrays.
type Path []string

var (
	identityPaths = []Path{{"id"}, {"product_id"}}

	titlePaths = []Path{{"product_name"}, {"title"}, {"name"}, {"product_info", "name"}}

	shopPaths = []Path{{"shop_name"}, {"author_name"}}

	// videoListKeys name the nested media arrays; the record itself is searched last.
	videoListKeys = []string{"video_list", "videos", "media_list"}

	videoURLPaths = []Path{
		{"video_play_url"},
		{"play_url"},
		{"url"},
		{"video_url"},
		{"video", "play_addr", "url_list", "0"},
	}

	videoIDPaths = []Path{{"video_id"}, {"uri"}, {"id"}}

	publishTimePaths = []Path{
		{"publish_ts"}, {"create_time"}, {"publish_time"}, {"created_at"}, {"published_at"},
		{"upload_time"}, {"uploaded_at"}, {"time"}, {"createTime"}, {"publishTime"},
	}
)

// DaysOnlineKey is the derived annotation written after a collection run.
const DaysOnlineKey = "days_online"

// Lookup walks path through nested maps and arrays.
func Lookup(rec map[string]any, path Path) (any, bool) {
	var cur any = rec
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case types.ListingRecord:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// First returns the first truthy value among paths, rendered as a string.
// Empty strings, zero numbers, false and null count as absent.
func First(rec map[string]any, paths []Path) string {
	for _, p := range paths {
		if v, ok := Lookup(rec, p); ok {
			if s := Stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Stringify renders a scalar the way it appears in filenames and ids.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil && f == 0 {
			return ""
		}
		return x.String()
	case float64:
		if x == 0 || math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		if x == 0 {
			return ""
		}
		return strconv.Itoa(x)
	case int64:
		if x == 0 {
			return ""
		}
		return strconv.FormatInt(x, 10)
	case bool:
		if !x {
			return ""
		}
		return "true"
	default:
		return ""
	}
}

// Identity returns the dedup key of a record: an explicit id when present,
// otherwise a structural hash of the whole record.
func Identity(rec map[string]any) string {
	if id := First(rec, identityPaths); id != "" {
		return id
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("hash:%p", rec)
	}
	sum := sha1.Sum(data)
	return "hash:" + hex.EncodeToString(sum[:])
}

// Title returns the provider title of a record.
func Title(rec map[string]any) string {
	return strings.TrimSpace(First(rec, titlePaths))
}

// Shop returns the shop or author name of a record.
func Shop(rec map[string]any) string {
	return strings.TrimSpace(First(rec, shopPaths))
}

// Videos extracts the downloadable media of a record, deduplicated by id.
func Videos(rec map[string]any) []types.VideoRef {
	var lists [][]any
	for _, key := range videoListKeys {
		if arr, ok := rec[key].([]any); ok {
			lists = append(lists, arr)
		}
	}
	lists = append(lists, []any{rec})

	seen := make(map[string]struct{})
	var refs []types.VideoRef
	for _, list := range lists {
		for _, raw := range list {
			item := asMap(raw)
			if item == nil {
				continue
			}
			url := First(item, videoURLPaths)
			if url == "" {
				continue
			}
			id := SafeID(First(item, videoIDPaths))
			if id == "" {
				id = idFromURL(url)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			refs = append(refs, types.VideoRef{URL: url, ID: id, PublishTime: firstValue(item, publishTimePaths)})
		}
	}
	return refs
}

// DaysOnline returns whole days since the earliest publish_ts across the
// record's media lists. ok is false when no timestamp exists or it lies in the future.
func DaysOnline(rec map[string]any, now time.Time) (days int, ok bool) {
	earliest := math.Inf(1)
	for _, key := range videoListKeys {
		arr, _ := rec[key].([]any)
		for _, raw := range arr {
			item := asMap(raw)
			if item == nil {
				continue
			}
			if ts, has := number(item["publish_ts"]); has && ts > 0 && ts < earliest {
				earliest = ts
			}
		}
	}
	if math.IsInf(earliest, 1) {
		return 0, false
	}
	diff := now.Sub(time.UnixMilli(int64(earliest * 1000)))
	days = int(math.Floor(diff.Hours() / 24))
	if days < 0 {
		return 0, false
	}
	return days, true
}

// idFromURL derives a stable id from the last path segment of url, falling back
// to a content hash when the segment is empty.
func idFromURL(url string) string {
	seg := url
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if i := strings.IndexAny(seg, "?#"); i >= 0 {
		seg = seg[:i]
	}
	if id := SafeID(seg); id != "" {
		return id
	}
	return hashID(url)
}

var wordOnly = regexp.MustCompile(`^\w+$`)

// SafeID returns id in the form media filenames carry: word characters only.
// A trailing extension is dropped; anything else that is not word-only is
// replaced by a hash of the raw id. Empty stays empty.
func SafeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || wordOnly.MatchString(id) {
		return id
	}
	if i := strings.LastIndex(id, "."); i > 0 && wordOnly.MatchString(id[:i]) && wordOnly.MatchString(id[i+1:]) {
		return id[:i]
	}
	return hashID(id)
}

func hashID(s string) string {
	sum := sha1.Sum([]byte(s))
	return "u" + hex.EncodeToString(sum[:])[:16]
}

func firstValue(rec map[string]any, paths []Path) any {
	for _, p := range paths {
		if v, ok := Lookup(rec, p); ok && Stringify(v) != "" {
			return v
		}
	}
	return nil
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case types.ListingRecord:
		return m
	}
	return nil
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// Days returns the days_online annotation of rec, whichever numeric form it was
// stored or decoded in.
func Days(rec map[string]any) (int, bool) {
	if d, ok := rec[DaysOnlineKey].(int); ok {
		return d, true
	}
	f, ok := number(rec[DaysOnlineKey])
	if !ok {
		return 0, false
	}
	return int(f), true
}
