package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookflow/book"
	"bookflow/internal/channel"
	"bookflow/models"
)

func TestViewStoreConsumesChannel(t *testing.T) {
	ch := channel.NewBookChannels(4)
	store := &viewStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		store.consume(ctx, ch.Views)
		close(done)
	}()

	v := book.New(models.InstrumentXBTUSD).View()
	require.True(t, ch.SendView(ctx, v))
	require.Eventually(t, func() bool { return store.latest() == v }, time.Second, time.Millisecond)

	require.True(t, ch.SendView(ctx, nil))
	require.Eventually(t, func() bool {
		n, _ := store.stats()
		return n == 2
	}, time.Second, time.Millisecond)
	assert.Nil(t, store.latest(), "a nil view clears the book")

	ch.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return after close")
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "warning"
	entry.Data = logrus.Fields{"component": "feed", "instrument": models.InstrumentXBTUSD, "err": assert.AnError}

	require.NoError(t, store.Fire(entry))

	snapshot := store.snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "feed", snapshot[0].Component)
	assert.Equal(t, models.InstrumentXBTUSD, snapshot[0].Fields["instrument"])
	assert.Equal(t, assert.AnError.Error(), snapshot[0].Fields["err"])
	assert.NotContains(t, snapshot[0].Fields, "component")
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Data = logrus.Fields{"index": i}
		require.NoError(t, store.Fire(entry))
	}

	snapshot := store.snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 2, snapshot[0].Fields["index"])

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	require.NoError(t, store.Fire(entry))
	assert.Len(t, store.snapshot(), 2, "closed store accepts nothing")
}
