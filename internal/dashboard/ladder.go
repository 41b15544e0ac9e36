package dashboard

import (
	"time"

	"bookflow/book"
	"bookflow/models"
	"bookflow/processor"
)

// Ladder is the display form of a book: grouped, trimmed to the levels
// nearest the touch and annotated with depth. Both sides list the best
// price first, so totals accumulate away from the spread.
type Ladder struct {
	Instrument models.InstrumentID     `json:"instrument"`
	GroupSize  float64                 `json:"group_size"`
	Sequence   uint64                  `json:"sequence"`
	UpdatedAt  time.Time               `json:"updated_at"`
	Spread     *float64                `json:"spread,omitempty"`
	Bids       []models.AnnotatedLevel `json:"bids"`
	Asks       []models.AnnotatedLevel `json:"asks"`
}

func buildLadder(v *book.View, groupSize float64, depth int) (*Ladder, error) {
	buy, err := processor.Group(v.Buy, groupSize)
	if err != nil {
		return nil, err
	}
	sell, err := processor.Group(v.Sell, groupSize)
	if err != nil {
		return nil, err
	}

	buy = reversed(processor.Window(buy, depth, processor.SideBuy))
	sell = processor.Window(sell, depth, processor.SideSell)

	l := &Ladder{
		Instrument: v.Instrument,
		GroupSize:  groupSize,
		Sequence:   v.Sequence,
		UpdatedAt:  v.UpdatedAt,
		Bids:       processor.Annotate(buy),
		Asks:       processor.Annotate(sell),
	}
	if len(v.Buy) > 0 && len(v.Sell) > 0 {
		spread := v.Sell[0].Price - v.Buy[len(v.Buy)-1].Price
		l.Spread = &spread
	}
	return l, nil
}

func reversed(levels []models.Level) []models.Level {
	out := make([]models.Level, len(levels))
	for i, l := range levels {
		out[len(levels)-1-i] = l
	}
	return out
}
