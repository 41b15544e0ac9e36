package book

import (
	"time"

	"bookflow/models"
)

// OrderBook pairs the buy and sell sides of one instrument. It is owned by
// a single feed session and replaced outright on instrument switches.
type OrderBook struct {
	instrument models.InstrumentID
	buy        *LevelStore
	sell       *LevelStore
	sequence   uint64
	updatedAt  time.Time
}

func New(instrument models.InstrumentID) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		buy:        NewLevelStore(),
		sell:       NewLevelStore(),
	}
}

// FromSnapshot builds a book from a feed snapshot.
func FromSnapshot(snap *models.Snapshot) *OrderBook {
	b := New(snap.ProductID)
	b.ApplySnapshot(snap.Bids, snap.Asks)
	return b
}

// ApplySnapshot wholly replaces both sides. Bids arrive best (highest)
// first and are reversed into ascending order; asks are already ascending.
func (b *OrderBook) ApplySnapshot(bids, asks []models.RawLevel) {
	buy := make([]models.Level, len(bids))
	for i, r := range bids {
		buy[len(bids)-1-i] = r.Level()
	}
	b.buy.Replace(buy)
	b.sell.Replace(models.ToLevels(asks))
	b.touch()
}

// ApplyDelta patches both sides with an incremental update.
func (b *OrderBook) ApplyDelta(d *models.Delta) {
	if d.Empty() {
		return
	}
	b.buy.Apply(models.ToLevels(d.Bids))
	b.sell.Apply(models.ToLevels(d.Asks))
	b.touch()
}

func (b *OrderBook) Instrument() models.InstrumentID { return b.instrument }

func (b *OrderBook) Buy() *LevelStore { return b.buy }

func (b *OrderBook) Sell() *LevelStore { return b.sell }

// Spread returns the gap between the best ask and the best bid.
func (b *OrderBook) Spread() (float64, bool) {
	bid, ok := b.buy.Max()
	if !ok {
		return 0, false
	}
	ask, ok := b.sell.Min()
	if !ok {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// View captures an immutable copy of the book for consumers.
func (b *OrderBook) View() *View {
	return &View{
		Instrument: b.instrument,
		Buy:        b.buy.Levels(),
		Sell:       b.sell.Levels(),
		Sequence:   b.sequence,
		UpdatedAt:  b.updatedAt,
	}
}

func (b *OrderBook) touch() {
	b.sequence++
	b.updatedAt = time.Now()
}

// View is a point-in-time copy of an OrderBook. Both sides are ascending by
// price.
type View struct {
	Instrument models.InstrumentID `json:"instrument"`
	Buy        []models.Level      `json:"buy"`
	Sell       []models.Level      `json:"sell"`
	Sequence   uint64              `json:"sequence"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
