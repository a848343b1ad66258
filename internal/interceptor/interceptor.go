// Package interceptor observes and rewrites the host page's listing responses.
//
// It is transport-agnostic: the CDP binding in package page hands every paused
// response to Wrap and fulfills the request with whatever Body returns.
package interceptor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/listing"
	"github.com/jonathan/compass-harvester/internal/types"
)

// limitCeiling is the largest page-size value that gets patched.
const limitCeiling = 50

// Options configures which responses are intercepted.
type Options struct {
	// Targets are URL substrings identifying listing endpoints.
	Targets []string
	// ListField names the item array under the top-level "data" object.
	ListField string
}

// DefaultOptions returns the endpoints of the analytics page.
func DefaultOptions() Options {
	return Options{
		Targets:   []string{"market_hot_sale", "video_bring_good"},
		ListField: "data_result",
	}
}

// Interceptor applies observe and rewrite behavior to matching responses.
type Interceptor struct {
	state *collect.State
	opts  Options
	log   *logrus.Entry
}

// New creates an interceptor writing into state.
func New(state *collect.State, opts Options, log *logrus.Entry) *Interceptor {
	def := DefaultOptions()
	if len(opts.Targets) == 0 {
		opts.Targets = def.Targets
	}
	if opts.ListField == "" {
		opts.ListField = def.ListField
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Interceptor{state: state, opts: opts, log: log}
}

// Targets returns the configured URL substrings.
func (i *Interceptor) Targets() []string {
	return append([]string(nil), i.opts.Targets...)
}

// Matches reports whether url is a listing endpoint.
func (i *Interceptor) Matches(url string) bool {
	if url == "" {
		return false
	}
	for _, t := range i.opts.Targets {
		if strings.Contains(url, t) {
			return true
		}
	}
	return false
}

// Response is one intercepted response. Body may be called any number of
// times and from any goroutine; the rewrite runs at most once.
type Response struct {
	RequestID string
	URL       string
	Status    int

	i       *Interceptor
	raw     []byte
	matched bool

	once      sync.Once
	body      []byte
	rewritten bool
}

// Wrap registers a delivered response. For a matching URL with status 200 the
// observe step runs immediately: the current view is replaced and, while
// collecting without injection, the items are appended to the collected list.
func (i *Interceptor) Wrap(requestID, url string, status int, body []byte) *Response {
	r := &Response{RequestID: requestID, URL: url, Status: status, i: i, raw: body, matched: i.Matches(url)}
	if r.matched && status == 200 {
		i.observe(body)
	}
	return r
}

func (i *Interceptor) observe(body []byte) {
	doc, err := decode(body)
	if err != nil {
		return
	}
	items, ok := i.items(doc)
	if !ok {
		return
	}
	i.state.SetCurrentView(items)
	collecting, inject := i.state.Mode()
	if collecting && !inject {
		i.state.Append(items...)
		i.log.WithField("items", len(items)).Debug("observed listing page")
	}
}

// Body returns the body the host page should see.
func (r *Response) Body() []byte {
	r.once.Do(func() {
		r.body = r.raw
		if !r.matched {
			return
		}
		if out, ok := r.i.rewrite(r.raw); ok {
			r.body = out
			r.rewritten = true
		}
	})
	return r.body
}

// Rewritten reports whether Body differs from the delivered body.
func (r *Response) Rewritten() bool {
	r.Body()
	return r.rewritten
}

func (i *Interceptor) rewrite(body []byte) ([]byte, bool) {
	collecting, inject := i.state.Mode()
	if !collecting || !inject {
		return nil, false
	}
	doc, err := decode(body)
	if err != nil {
		return nil, false
	}
	items, ok := i.items(doc)
	if !ok {
		return nil, false
	}

	combined := append(i.state.Items(), items...)
	unique := Dedup(combined)
	i.state.Replace(unique)

	list := make([]any, len(unique))
	for k, rec := range unique {
		list[k] = map[string]any(rec)
	}
	// Records are left untouched so hash identities stay stable across rewrites.
	data := doc["data"].(map[string]any)
	delete(data, i.opts.ListField)
	PatchLimits(doc, len(unique))
	data[i.opts.ListField] = list

	out, err := encode(doc)
	if err != nil {
		i.log.WithError(err).Warn("failed to encode rewritten response, passing through")
		return nil, false
	}
	i.log.WithField("items", len(unique)).Info("injected accumulated items")
	return out, true
}

// items extracts data.<ListField> as records. Non-object elements are dropped.
func (i *Interceptor) items(doc map[string]any) ([]types.ListingRecord, bool) {
	data, ok := doc["data"].(map[string]any)
	if !ok {
		return nil, false
	}
	arr, ok := data[i.opts.ListField].([]any)
	if !ok {
		return nil, false
	}
	recs := make([]types.ListingRecord, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			recs = append(recs, types.ListingRecord(m))
		}
	}
	return recs, true
}

// Dedup keeps the first record of each identity, preserving order.
func Dedup(recs []types.ListingRecord) []types.ListingRecord {
	seen := make(map[string]struct{}, len(recs))
	out := make([]types.ListingRecord, 0, len(recs))
	for _, rec := range recs {
		id := listing.Identity(rec)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// PatchLimits walks v and sets every numeric field whose key contains "size"
// or "limit" and whose value is at most 50 to n.
func PatchLimits(v any, n int) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if num, ok := child.(json.Number); ok && isLimitKey(k) {
				if f, err := num.Float64(); err == nil && f <= limitCeiling {
					node[k] = json.Number(strconv.Itoa(n))
					continue
				}
			}
			PatchLimits(child, n)
		}
	case types.ListingRecord:
		PatchLimits(map[string]any(node), n)
	case []any:
		for _, child := range node {
			PatchLimits(child, n)
		}
	}
}

func isLimitKey(k string) bool {
	return strings.Contains(k, "size") || strings.Contains(k, "limit")
}

func decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func encode(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
