package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/book"
	"bookflow/models"
)

func TestBuildLadderOneSidedBook(t *testing.T) {
	v := &book.View{
		Instrument: models.InstrumentETHUSD,
		Buy:        []models.Level{{Price: 3000.05, Size: 1}, {Price: 3000.1, Size: 3}},
	}

	l, err := buildLadder(v, 0.05, 0)
	require.NoError(t, err)
	assert.Nil(t, l.Spread)
	assert.Empty(t, l.Asks)
	require.Len(t, l.Bids, 2)
	assert.Equal(t, 3000.1, l.Bids[0].Price)
	assert.Equal(t, 4.0, l.Bids[1].Total)
	assert.InDelta(t, 75, l.Bids[0].DepthPercent, 1e-9)
}

func TestBuildLadderRejectsBadGroupSize(t *testing.T) {
	_, err := buildLadder(xbtView(), 0, 15)
	assert.Error(t, err)
}
