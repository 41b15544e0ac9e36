package channel

import (
	"context"
	"sync"

	"bookflow/book"
	"bookflow/logger"
)

type ChannelStats struct {
	ViewsSent    int64
	ViewsEvicted int64
}

// BookChannels carries published book views to a consumer. A nil view
// announces that no book is currently available.
type BookChannels struct {
	Views chan *book.View

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewBookChannels(bufferSize int) *BookChannels {
	if bufferSize < 1 {
		bufferSize = 1
	}
	log := logger.GetLogger()
	c := &BookChannels{
		Views: make(chan *book.View, bufferSize),
		log:   log,
	}

	log.WithComponent("book_channels").WithFields(logger.Fields{
		"view_buffer_size": bufferSize,
	}).Info("book channels initialized")

	return c
}

func (c *BookChannels) Close() {
	c.closeOnce.Do(func() {
		close(c.Views)
		c.log.WithComponent("book_channels").Info("book channels closed")
	})
}

// SendView never blocks. When the consumer lags, the oldest queued view is
// evicted to make room: a newer view supersedes every view before it.
func (c *BookChannels) SendView(ctx context.Context, v *book.View) bool {
	if ctx.Err() != nil {
		return false
	}
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case c.Views <- v:
			c.statsMutex.Lock()
			c.stats.ViewsSent++
			c.statsMutex.Unlock()
			return true
		default:
		}

		select {
		case <-c.Views:
			c.statsMutex.Lock()
			c.stats.ViewsEvicted++
			c.statsMutex.Unlock()
		default:
		}
	}
	return false
}

func (c *BookChannels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
