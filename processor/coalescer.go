package processor

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// CoalesceMode selects what happens to deltas that arrive while a
// coalescing window is open.
type CoalesceMode string

const (
	// ModeMerge accumulates every delta of the window, last value wins per
	// price, and applies the merged result at the trailing edge.
	ModeMerge CoalesceMode = "merge"
	// ModeDrop keeps only the most recent delta of the window. Changes
	// carried by earlier deltas in the window never reach the book.
	ModeDrop CoalesceMode = "drop"
)

const DefaultCoalesceInterval = 16 * time.Millisecond

// ParseCoalesceMode validates a configured mode. Empty selects ModeMerge.
func ParseCoalesceMode(s string) (CoalesceMode, error) {
	switch CoalesceMode(s) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeDrop:
		return ModeDrop, nil
	}
	return "", fmt.Errorf("unknown coalesce mode %q", s)
}

// DeltaCoalescer bounds how often deltas mutate the book. The first delta
// after an idle period is released immediately (leading edge); deltas
// arriving inside the window are held and released once the window elapses
// (trailing edge), which opens the next window.
//
// The rate limiter outlives Reset. A window cut short by Reset still counts
// against the interval, so a delta pushed right after a Reset (for instance
// the first one after a snapshot) is held for the trailing edge instead of
// applied at once. Applications therefore never exceed one per interval,
// resets included.
//
// It is not safe for concurrent use: the owner drives Push, Flush and Reset
// from a single goroutine and selects on C to learn when Flush is due.
type DeltaCoalescer struct {
	interval time.Duration
	mode     CoalesceMode
	limiter  *rate.Limiter
	timer    *time.Timer
	pending  *pendingDelta
	log      *logger.Entry
}

func NewDeltaCoalescer(interval time.Duration, mode CoalesceMode) *DeltaCoalescer {
	if interval <= 0 {
		interval = DefaultCoalesceInterval
	}
	if mode == "" {
		mode = ModeMerge
	}
	return &DeltaCoalescer{
		interval: interval,
		mode:     mode,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		log:      logger.GetLogger().WithComponent("coalescer"),
	}
}

// Push offers a delta. It returns the delta when it may be applied right
// away, or nil when it was buffered for the trailing edge.
func (c *DeltaCoalescer) Push(d *models.Delta) *models.Delta {
	if d == nil {
		return nil
	}
	if c.timer == nil && c.limiter.Allow() {
		c.arm()
		metrics.IncrementFlush("leading")
		return d
	}
	c.buffer(d)
	if c.timer == nil {
		c.arm()
	}
	return nil
}

// C fires when the trailing edge is due. It is nil while idle.
func (c *DeltaCoalescer) C() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

// Flush is called after C fired. It returns the held delta, if any, and
// opens a new window; with nothing held the coalescer goes idle.
func (c *DeltaCoalescer) Flush() *models.Delta {
	c.timer = nil
	if c.pending == nil {
		return nil
	}
	out := c.pending.delta()
	c.pending = nil
	c.arm()
	metrics.IncrementFlush("trailing")
	return out
}

// Pending reports whether a delta is held for the trailing edge.
func (c *DeltaCoalescer) Pending() bool {
	return c.pending != nil
}

// Reset cancels the window timer and discards anything held.
func (c *DeltaCoalescer) Reset() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.pending != nil {
		c.log.WithFields(logger.Fields{"instrument": c.pending.product}).Debug("discarding held delta")
	}
	c.pending = nil
}

func (c *DeltaCoalescer) Interval() time.Duration { return c.interval }

func (c *DeltaCoalescer) Mode() CoalesceMode { return c.mode }

func (c *DeltaCoalescer) arm() {
	c.timer = time.NewTimer(c.interval)
}

func (c *DeltaCoalescer) buffer(d *models.Delta) {
	if c.mode == ModeDrop || c.pending == nil || c.pending.product != d.ProductID {
		c.pending = newPendingDelta(d)
		return
	}
	metrics.AddMerged(c.pending.merge(d))
}

// pendingDelta accumulates level changes per side, keeping one entry per
// price in first-seen order.
type pendingDelta struct {
	product models.InstrumentID
	bids    []models.RawLevel
	asks    []models.RawLevel
	bidIdx  map[float64]int
	askIdx  map[float64]int
}

func newPendingDelta(d *models.Delta) *pendingDelta {
	p := &pendingDelta{
		product: d.ProductID,
		bidIdx:  make(map[float64]int, len(d.Bids)),
		askIdx:  make(map[float64]int, len(d.Asks)),
	}
	p.merge(d)
	return p
}

// merge folds d into p and returns how many held entries it superseded.
func (p *pendingDelta) merge(d *models.Delta) int {
	var superseded int
	p.bids, superseded = mergeSide(p.bids, p.bidIdx, d.Bids)
	var n int
	p.asks, n = mergeSide(p.asks, p.askIdx, d.Asks)
	return superseded + n
}

func mergeSide(held []models.RawLevel, idx map[float64]int, in []models.RawLevel) ([]models.RawLevel, int) {
	superseded := 0
	for _, l := range in {
		if i, ok := idx[l[0]]; ok {
			held[i] = l
			superseded++
			continue
		}
		idx[l[0]] = len(held)
		held = append(held, l)
	}
	return held, superseded
}

func (p *pendingDelta) delta() *models.Delta {
	return &models.Delta{ProductID: p.product, Bids: p.bids, Asks: p.asks}
}
