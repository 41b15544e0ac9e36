package channel

import (
	"context"
	"testing"

	"bookflow/book"
	"bookflow/models"
)

func TestSendViewEvictsOldestWhenFull(t *testing.T) {
	c := NewBookChannels(1)
	defer c.Close()
	ctx := context.Background()

	b := book.New(models.InstrumentXBTUSD)
	older := b.View()
	b.ApplyDelta(&models.Delta{ProductID: models.InstrumentXBTUSD, Bids: []models.RawLevel{{100, 1}}})
	newer := b.View()

	if !c.SendView(ctx, older) {
		t.Fatal("first send should succeed")
	}
	if !c.SendView(ctx, newer) {
		t.Fatal("second send should replace the queued view")
	}
	if got := <-c.Views; got != newer {
		t.Fatalf("consumer received sequence %d, want %d", got.Sequence, newer.Sequence)
	}
	stats := c.GetStats()
	if stats.ViewsSent != 2 || stats.ViewsEvicted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendViewNilReplacesStaleBook(t *testing.T) {
	c := NewBookChannels(2)
	defer c.Close()
	ctx := context.Background()
	v := book.New(models.InstrumentXBTUSD).View()

	c.SendView(ctx, v)
	c.SendView(ctx, v)
	c.SendView(ctx, nil)

	if got := <-c.Views; got != v {
		t.Fatalf("expected queued book first, got %+v", got)
	}
	if got := <-c.Views; got != nil {
		t.Fatalf("last delivered view must be the absent book, got %+v", got)
	}
}

func TestSendViewCancelledContext(t *testing.T) {
	c := NewBookChannels(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.SendView(ctx, nil) {
		t.Fatal("send on cancelled context should fail")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewBookChannels(1)
	c.Close()
	c.Close()
	if _, ok := <-c.Views; ok {
		t.Fatal("views channel should be closed")
	}
}
