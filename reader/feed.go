package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"bookflow/book"
	"bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/processor"
)

var (
	ErrAlreadyRunning = errors.New("feed already running")
	ErrNotRunning     = errors.New("feed not running")

	errSessionClosed = errors.New("session closed before dial completed")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Feed keeps a local order book in sync with the streaming feed. It owns
// at most one transport session at a time, reconnects with exponential
// backoff whenever the session closes, and switches instruments on the live
// session.
//
// Every state transition runs on a single event loop goroutine: control
// calls, transport events and timer expiries are serialized there, so the
// loop-owned fields below need no locking. Values read by other goroutines
// are mirrored into atomics.
type Feed struct {
	url         string
	feedName    string
	dialTimeout time.Duration
	instruments models.Instruments
	dialer      Dialer
	views       *channel.BookChannels
	log         *logger.Log

	// loop-owned
	instrument models.InstrumentID
	kill       bool
	stopped    bool
	session    *session
	book       *book.OrderBook
	backoff    *backoff.Backoff
	reconnect  *time.Timer
	coalescer  *processor.DeltaCoalescer

	ctx      context.Context
	cancel   context.CancelFunc
	commands chan command
	events   chan sessionEvent
	done     chan struct{}

	mu      sync.Mutex
	started bool

	state         atomic.Int32
	killed        atomic.Bool
	currentSymbol atomic.Value
	latest        atomic.Pointer[book.View]
}

// session is one transport connection attempt. conn and subscribed belong
// to the event loop; live is the dialed connection as seen by the dial
// goroutine and is guarded by mu so that close reaches it even before the
// loop learns about it.
type session struct {
	id         string
	conn       Conn
	cancel     context.CancelFunc
	subscribed bool

	mu     sync.Mutex
	live   Conn
	closed bool
}

// attach hands the dialed connection to the session. It closes conn and
// reports false when the session was already closed.
func (s *session) attach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return false
	}
	s.live = conn
	return true
}

// close aborts a pending dial and closes the connection, if any.
func (s *session) close() {
	s.mu.Lock()
	s.closed = true
	conn := s.live
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventClosed
	eventMessage
)

type sessionEvent struct {
	kind    eventKind
	session *session
	conn    Conn
	data    []byte
	err     error
}

type command struct {
	fn    func()
	reply chan struct{}
}

// NewFeed builds a feed from configuration. views may be nil when the
// caller only polls Book.
func NewFeed(cfg *config.Config, dialer Dialer, views *channel.BookChannels) (*Feed, error) {
	mode, err := processor.ParseCoalesceMode(cfg.Feed.Coalesce.Mode)
	if err != nil {
		return nil, err
	}
	if dialer == nil {
		dialer = WebsocketDialer{HandshakeTimeout: cfg.Feed.DialTimeout}
	}
	instruments := cfg.Instruments
	if len(instruments) == 0 {
		instruments = models.DefaultInstruments()
	}
	dialTimeout := cfg.Feed.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &Feed{
		url:         cfg.Feed.URL,
		feedName:    cfg.Feed.FeedName,
		dialTimeout: dialTimeout,
		instruments: instruments,
		dialer:      dialer,
		views:       views,
		log:         logger.GetLogger(),
		backoff:     newBackoff(cfg.Feed.Retry),
		coalescer:   processor.NewDeltaCoalescer(cfg.Feed.Coalesce.Interval, mode),
		commands:    make(chan command),
		events:      make(chan sessionEvent, 64),
		done:        make(chan struct{}),
	}, nil
}

// Start connects and subscribes to instrument. The feed runs until Stop is
// called or ctx is cancelled; a stopped feed cannot be restarted.
func (f *Feed) Start(ctx context.Context, instrument models.InstrumentID) error {
	if _, err := f.instruments.Lookup(instrument); err != nil {
		return err
	}

	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyRunning
	}
	f.started = true
	f.mu.Unlock()

	f.ctx, f.cancel = context.WithCancel(ctx)
	f.instrument = instrument
	f.currentSymbol.Store(instrument)

	f.log.WithComponent("feed").WithFields(logger.Fields{
		"url":        f.url,
		"instrument": instrument,
		"coalesce":   f.coalescer.Mode(),
	}).Info("starting feed")

	go f.run()
	return nil
}

// Stop unsubscribes the live session, if any, closes it and cancels every
// pending timer. It returns once the event loop has exited.
func (f *Feed) Stop() error {
	if err := f.do(f.shutdown); err != nil {
		return err
	}
	<-f.done
	f.cancel()
	f.log.WithComponent("feed").Info("feed stopped")
	return nil
}

// SwitchInstrument moves the subscription to id on the current session.
func (f *Feed) SwitchInstrument(id models.InstrumentID) error {
	if _, err := f.instruments.Lookup(id); err != nil {
		return err
	}
	return f.do(func() { f.switchInstrument(id) })
}

// SetKillSwitch suspends (true) or resumes (false) the subscription.
func (f *Feed) SetKillSwitch(on bool) error {
	return f.do(func() { f.setKillSwitch(on) })
}

// Book returns the latest published view, or nil while no snapshot has
// arrived for the current subscription.
func (f *Feed) Book() *book.View {
	return f.latest.Load()
}

func (f *Feed) State() State {
	return State(f.state.Load())
}

func (f *Feed) KillSwitch() bool {
	return f.killed.Load()
}

func (f *Feed) Instrument() models.InstrumentID {
	id, _ := f.currentSymbol.Load().(models.InstrumentID)
	return id
}

// Instruments returns the instrument table the feed accepts.
func (f *Feed) Instruments() models.Instruments {
	return f.instruments
}

// do runs fn on the event loop and waits for it to complete.
func (f *Feed) do(fn func()) error {
	f.mu.Lock()
	started := f.started
	f.mu.Unlock()
	if !started {
		return ErrNotRunning
	}

	reply := make(chan struct{})
	select {
	case f.commands <- command{fn: fn, reply: reply}:
	case <-f.done:
		return ErrNotRunning
	}
	<-reply
	return nil
}

func (f *Feed) run() {
	defer f.drain()
	defer close(f.done)
	f.connect()

	for {
		select {
		case <-f.ctx.Done():
			f.shutdown()
			return
		case cmd := <-f.commands:
			cmd.fn()
			close(cmd.reply)
			if f.stopped {
				return
			}
		case ev := <-f.events:
			f.handleEvent(ev)
		case <-f.reconnectC():
			f.reconnect = nil
			f.connect()
		case <-f.coalescer.C():
			if d := f.coalescer.Flush(); d != nil {
				f.applyDelta(d)
			}
		}
	}
}

func (f *Feed) reconnectC() <-chan time.Time {
	if f.reconnect == nil {
		return nil
	}
	return f.reconnect.C
}

func (f *Feed) setState(s State) {
	f.state.Store(int32(s))
	metrics.SetFeedState(int(s))
}

// drain closes connections carried by events nobody will handle.
func (f *Feed) drain() {
	for {
		select {
		case ev := <-f.events:
			if ev.session != nil {
				ev.session.close()
			}
			if ev.conn != nil {
				ev.conn.Close()
			}
		default:
			return
		}
	}
}

// connect starts a new session, superseding any pending reconnect.
func (f *Feed) connect() {
	f.cancelReconnect()

	dialCtx, cancel := context.WithTimeout(f.ctx, f.dialTimeout)
	s := &session{id: uuid.NewString(), cancel: cancel}
	f.session = s
	f.setState(StateConnecting)

	f.log.WithComponent("feed").WithFields(logger.Fields{
		"session": s.id,
		"attempt": f.backoff.Attempt(),
	}).Debug("connecting")

	go f.dial(dialCtx, s)
}

// dial and the read loop run off the event loop and only report back
// through events.
func (f *Feed) dial(ctx context.Context, s *session) {
	conn, err := f.dialer.Dial(ctx, f.url)
	s.cancel()
	if err != nil {
		f.post(sessionEvent{kind: eventClosed, session: s, err: err})
		return
	}
	if !s.attach(conn) {
		f.post(sessionEvent{kind: eventClosed, session: s, err: errSessionClosed})
		return
	}
	if !f.post(sessionEvent{kind: eventOpened, session: s, conn: conn}) {
		conn.Close()
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.post(sessionEvent{kind: eventClosed, session: s, err: err})
			return
		}
		if !f.post(sessionEvent{kind: eventMessage, session: s, data: data}) {
			conn.Close()
			return
		}
	}
}

// post delivers ev to the event loop. Once the loop is gone it reports
// false, even when the buffer still has room.
func (f *Feed) post(ev sessionEvent) bool {
	select {
	case <-f.done:
		return false
	default:
	}
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

func (f *Feed) handleEvent(ev sessionEvent) {
	switch ev.kind {
	case eventOpened:
		f.handleOpened(ev.session, ev.conn)
	case eventClosed:
		f.handleClosed(ev.session, ev.err)
	case eventMessage:
		f.handleMessage(ev.session, ev.data)
	}
}

func (f *Feed) handleOpened(s *session, conn Conn) {
	if s != f.session || f.stopped {
		s.close()
		conn.Close()
		return
	}
	s.conn = conn
	metrics.IncrementConnect()
	log := f.log.WithComponent("feed").WithFields(logger.Fields{"session": s.id, "instrument": f.instrument})

	if f.kill {
		log.Debug("kill switch active, closing session")
		s.close()
		return
	}

	if err := conn.WriteJSON(models.NewSubscribe(f.feedName, f.instrument)); err != nil {
		log.WithError(err).Warn("failed to subscribe")
		s.close()
		return
	}
	s.subscribed = true
	f.backoff.Reset()
	f.coalescer.Reset()
	f.book = nil
	f.publish()
	f.setState(StateSubscribed)
	log.Info("subscribed")
}

func (f *Feed) handleClosed(s *session, err error) {
	if s != f.session {
		return
	}
	s.close()
	f.session = nil
	f.coalescer.Reset()
	f.setState(StateDisconnected)
	metrics.IncrementClose()

	if f.stopped {
		return
	}

	delay := f.backoff.Duration()
	f.reconnect = time.NewTimer(delay)
	metrics.SetBackoff(delay.Seconds())

	entry := f.log.WithComponent("feed").WithFields(logger.Fields{
		"session":  s.id,
		"retry_in": delay.String(),
		"killed":   f.kill,
	})
	if err != nil && !f.kill {
		entry = entry.WithError(err)
	}
	entry.Warn("session closed, scheduling reconnect")
}

func (f *Feed) handleMessage(s *session, data []byte) {
	if s != f.session || !s.subscribed {
		return
	}

	msg, err := models.DecodeFeedMessage(data)
	if err != nil {
		metrics.IncrementDecodeError()
		f.log.WithComponent("feed").WithError(err).Debug("dropping undecodable message")
		return
	}
	metrics.IncrementMessage(msg.Kind.String())

	switch msg.Kind {
	case models.KindSnapshot:
		if !f.isCurrent(msg.Snapshot.ProductID) {
			return
		}
		f.coalescer.Reset()
		f.book = book.FromSnapshot(msg.Snapshot)
		f.publish()
	case models.KindDelta:
		// Deltas before the first snapshot have nothing to patch.
		if f.book == nil || !f.isCurrent(msg.Delta.ProductID) {
			return
		}
		if d := f.coalescer.Push(msg.Delta); d != nil {
			f.applyDelta(d)
		}
	}
}

func (f *Feed) isCurrent(id models.InstrumentID) bool {
	return id == "" || id == f.instrument
}

func (f *Feed) applyDelta(d *models.Delta) {
	if f.book == nil || !f.isCurrent(d.ProductID) {
		return
	}
	f.book.ApplyDelta(d)
	f.publish()
}

func (f *Feed) publish() {
	var v *book.View
	if f.book != nil {
		v = f.book.View()
	}
	f.latest.Store(v)
	if f.views != nil {
		f.views.SendView(f.ctx, v)
	}
}

func (f *Feed) switchInstrument(id models.InstrumentID) {
	if id == f.instrument {
		return
	}
	old := f.instrument
	f.instrument = id
	f.currentSymbol.Store(id)
	f.coalescer.Reset()
	f.book = nil
	f.publish()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"from": old, "to": id})
	s := f.session
	if s == nil || !s.subscribed {
		log.Info("instrument changed, will subscribe on next session")
		return
	}
	if err := f.resubscribe(s.conn, old, id); err != nil {
		// The close event reconnects and subscribes the new instrument.
		log.WithError(err).Warn("failed to switch subscription, closing session")
		s.subscribed = false
		s.close()
		return
	}
	log.Info("switched instrument")
}

func (f *Feed) resubscribe(conn Conn, old, id models.InstrumentID) error {
	if err := conn.WriteJSON(models.NewUnsubscribe(f.feedName, old)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", old, err)
	}
	if err := conn.WriteJSON(models.NewSubscribe(f.feedName, id)); err != nil {
		return fmt.Errorf("subscribe %s: %w", id, err)
	}
	return nil
}

func (f *Feed) setKillSwitch(on bool) {
	if on == f.kill {
		return
	}
	f.kill = on
	f.killed.Store(on)
	f.log.WithComponent("feed").WithFields(logger.Fields{"kill_switch": on}).Info("kill switch toggled")
	if !on {
		return
	}

	f.coalescer.Reset()
	if s := f.session; s != nil && s.conn != nil {
		s.subscribed = false
		s.close()
	}
}

func (f *Feed) cancelReconnect() {
	if f.reconnect != nil {
		f.reconnect.Stop()
		f.reconnect = nil
	}
}

func (f *Feed) shutdown() {
	if f.stopped {
		return
	}
	f.stopped = true
	f.cancelReconnect()
	f.coalescer.Reset()

	if s := f.session; s != nil {
		if s.conn != nil && s.subscribed {
			if err := s.conn.WriteJSON(models.NewUnsubscribe(f.feedName, f.instrument)); err != nil {
				f.log.WithComponent("feed").WithError(err).Warn("failed to unsubscribe on stop")
			}
		}
		// Also reaches a connection whose opened event is still queued.
		s.close()
		f.session = nil
	}
	f.setState(StateDisconnected)
}
