package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/models"
)

func TestAnnotate(t *testing.T) {
	got := Annotate([]models.Level{lv(100, 1), lv(101, 3), lv(102, 4)})
	require.Len(t, got, 3)

	assert.Equal(t, lv(100, 1), got[0].Level)
	assert.Equal(t, 1.0, got[0].Total)
	assert.Equal(t, 4.0, got[1].Total)
	assert.Equal(t, 8.0, got[2].Total)
	assert.InDelta(t, 12.5, got[0].DepthPercent, 1e-9)
	assert.InDelta(t, 50, got[1].DepthPercent, 1e-9)
	assert.InDelta(t, 100, got[2].DepthPercent, 1e-9)
}

func TestAnnotate_Empty(t *testing.T) {
	assert.Empty(t, Annotate(nil))
}

func TestWindow(t *testing.T) {
	levels := []models.Level{lv(1, 1), lv(2, 1), lv(3, 1), lv(4, 1)}

	assert.Equal(t, []models.Level{lv(3, 1), lv(4, 1)}, Window(levels, 2, SideBuy))
	assert.Equal(t, []models.Level{lv(1, 1), lv(2, 1)}, Window(levels, 2, SideSell))
	assert.Equal(t, levels, Window(levels, 0, SideSell))
	assert.Equal(t, levels, Window(levels, 10, SideBuy))
}
