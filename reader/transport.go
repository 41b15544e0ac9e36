package reader

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one duplex feed session. Reads happen on a single goroutine and
// writes on another; Close may be called concurrently with a blocked read.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens feed sessions.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the feed over gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	// LocalIP binds outgoing connections to a local address when set.
	LocalIP string
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if d.LocalIP != "" {
		if ip := net.ParseIP(d.LocalIP); ip != nil {
			dialer.NetDialContext = (&net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}).DialContext
		}
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
