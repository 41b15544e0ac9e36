package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/models"
)

func snapshot() *models.Snapshot {
	return &models.Snapshot{
		NumLevels: 2,
		ProductID: models.InstrumentXBTUSD,
		Bids:      []models.RawLevel{{100.5, 1}, {100, 1}},
		Asks:      []models.RawLevel{{110, 1}, {110.5, 1}},
	}
}

func TestFromSnapshot(t *testing.T) {
	ob := FromSnapshot(snapshot())

	view := ob.View()
	assert.Equal(t, models.InstrumentXBTUSD, view.Instrument)
	assert.Equal(t, []models.Level{lv(100, 1), lv(100.5, 1)}, view.Buy, "bids are stored ascending")
	assert.Equal(t, []models.Level{lv(110, 1), lv(110.5, 1)}, view.Sell)
	assert.Equal(t, uint64(1), view.Sequence)
	assert.False(t, view.UpdatedAt.IsZero())
}

func TestOrderBook_ApplyDelta(t *testing.T) {
	ob := FromSnapshot(snapshot())

	ob.ApplyDelta(&models.Delta{
		ProductID: models.InstrumentXBTUSD,
		Bids:      []models.RawLevel{{99, 1}},
		Asks:      []models.RawLevel{{120, 1}, {110, 0}},
	})

	view := ob.View()
	assert.Equal(t, []models.Level{lv(99, 1), lv(100, 1), lv(100.5, 1)}, view.Buy)
	assert.Equal(t, []models.Level{lv(110.5, 1), lv(120, 1)}, view.Sell)
	assert.Equal(t, uint64(2), view.Sequence)
}

func TestOrderBook_EmptyDeltaDoesNotBumpSequence(t *testing.T) {
	ob := FromSnapshot(snapshot())
	ob.ApplyDelta(&models.Delta{ProductID: models.InstrumentXBTUSD})
	assert.Equal(t, uint64(1), ob.View().Sequence)
}

func TestOrderBook_SnapshotReplacesState(t *testing.T) {
	ob := FromSnapshot(snapshot())
	ob.ApplySnapshot([]models.RawLevel{{90, 2}}, []models.RawLevel{{95, 3}})

	view := ob.View()
	assert.Equal(t, []models.Level{lv(90, 2)}, view.Buy)
	assert.Equal(t, []models.Level{lv(95, 3)}, view.Sell)
}

func TestOrderBook_Spread(t *testing.T) {
	ob := New(models.InstrumentETHUSD)
	_, ok := ob.Spread()
	assert.False(t, ok)

	ob = FromSnapshot(snapshot())
	spread, ok := ob.Spread()
	require.True(t, ok)
	assert.InDelta(t, 9.5, spread, 1e-9)
}

func TestOrderBook_ViewIsACopy(t *testing.T) {
	ob := FromSnapshot(snapshot())
	view := ob.View()
	view.Buy[0].Size = 999

	assert.Equal(t, 1.0, ob.View().Buy[0].Size)
}
