package downloader

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go-civitai-fetch/internal/helpers"

	"github.com/gosuri/uilive"
)

// Tracker owns the progress state for one batch: a fixed set of display
// slots for in-flight transfers plus aggregate counters. It is scoped to
// a single DownloadAll invocation and rendered through a uilive writer
// when one is attached. The lock only protects counters and rendering;
// transfers never block each other on it beyond a counter update.
type Tracker struct {
	mu         sync.Mutex
	writer     *uilive.Writer
	slots      []trackerSlot
	total      int
	completed  int
	downloaded int
	skipped    int
	failed     int
}

type trackerSlot struct {
	name    string
	written uint64
	size    uint64
	active  bool
}

// NewTracker creates a tracker for a batch of total tasks with the given
// number of display slots (normally the concurrency bound). A nil output
// disables rendering; counters still work.
func NewTracker(out io.Writer, total, slots int) *Tracker {
	t := &Tracker{
		slots: make([]trackerSlot, slots),
		total: total,
	}
	if out != nil {
		t.writer = uilive.New()
		t.writer.Out = out
		t.writer.Start()
	}
	return t
}

// Stop flushes and detaches the live writer.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writer != nil {
		t.writer.Stop()
		t.writer = nil
	}
}

// AcquireSlot claims a free display slot for an in-flight transfer and
// returns its index, or -1 when all slots are taken (the transfer still
// proceeds, it just isn't individually rendered).
func (t *Tracker) AcquireSlot(name string, size uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if !t.slots[i].active {
			t.slots[i] = trackerSlot{name: name, size: size, active: true}
			t.render()
			return i
		}
	}
	return -1
}

// Advance adds written bytes to a slot.
func (t *Tracker) Advance(slot int, n int) {
	if slot < 0 {
		return
	}
	t.mu.Lock()
	t.slots[slot].written += uint64(n)
	t.render()
	t.mu.Unlock()
}

// ReleaseSlot frees a display slot.
func (t *Tracker) ReleaseSlot(slot int) {
	if slot < 0 {
		return
	}
	t.mu.Lock()
	t.slots[slot] = trackerSlot{}
	t.render()
	t.mu.Unlock()
}

// TaskDone records a finished task in the aggregate counters. Completion
// order is whatever order tasks finish in, not submission order.
func (t *Tracker) TaskDone(outcome Outcome) {
	t.mu.Lock()
	t.completed++
	switch {
	case outcome.Success && strings.Contains(outcome.Message, SkipMarker):
		t.skipped++
	case outcome.Success:
		t.downloaded++
	default:
		t.failed++
	}
	t.render()
	t.mu.Unlock()
}

// Counts returns the running {downloaded, skipped, failed} totals.
func (t *Tracker) Counts() (downloaded, skipped, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.downloaded, t.skipped, t.failed
}

// render repaints the live region. Caller must hold the lock.
func (t *Tracker) render() {
	if t.writer == nil {
		return
	}
	fmt.Fprintf(t.writer, "Downloading %d/%d (ok: %d, skipped: %d, failed: %d)\n",
		t.completed, t.total, t.downloaded, t.skipped, t.failed)
	for _, s := range t.slots {
		if !s.active {
			continue
		}
		if s.size > 0 {
			pct := float64(s.written) / float64(s.size) * 100
			fmt.Fprintf(t.writer.Newline(), "  %s: %3.0f%% (%s/%s)\n",
				s.name, pct, helpers.BytesToSize(s.written), helpers.BytesToSize(s.size))
		} else {
			fmt.Fprintf(t.writer.Newline(), "  %s: %s\n", s.name, helpers.BytesToSize(s.written))
		}
	}
	_ = t.writer.Flush()
}
