package harvest

import "sync/atomic"

// Control carries the operator's skip and stop requests into a running loop.
// Skip is observed while waiting for search results and between downloads.
// Once set it holds for the rest of the entry, so no later selected row of
// that entry downloads either; nextEntry clears it. Stop is observed only
// between entries.
type Control struct {
	skip atomic.Bool
	stop atomic.Bool
}

// Skip asks the loop to abandon the rest of the current entry. Videos already
// saved stay saved.
func (c *Control) Skip() {
	c.skip.Store(true)
}

// Skipped reports whether a skip is pending for the current entry.
func (c *Control) Skipped() bool {
	return c.skip.Load()
}

// RequestStop asks the loop to stop at the next entry boundary.
func (c *Control) RequestStop() {
	c.stop.Store(true)
}

// Stopped reports whether a stop was requested.
func (c *Control) Stopped() bool {
	return c.stop.Load()
}

// nextEntry clears the skip flag before an entry starts.
func (c *Control) nextEntry() {
	c.skip.Store(false)
}

// reset clears both flags before a run starts.
func (c *Control) reset() {
	c.skip.Store(false)
	c.stop.Store(false)
}
