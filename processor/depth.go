package processor

import "bookflow/models"

// Annotate attaches the running cumulative size and its share of the side
// total to each level, keeping input order.
func Annotate(levels []models.Level) []models.AnnotatedLevel {
	out := make([]models.AnnotatedLevel, len(levels))
	var total float64
	for i, l := range levels {
		total += l.Size
		out[i] = models.AnnotatedLevel{Level: l, Total: total}
	}
	if total == 0 {
		return out
	}
	for i := range out {
		out[i].DepthPercent = out[i].Total / total * 100
	}
	return out
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Window keeps the n ascending levels nearest the touch: the highest bids or
// the lowest asks. n <= 0 keeps everything.
func Window(levels []models.Level, n int, side Side) []models.Level {
	if n <= 0 || len(levels) <= n {
		return levels
	}
	if side == SideBuy {
		return levels[len(levels)-n:]
	}
	return levels[:n]
}
