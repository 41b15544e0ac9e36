package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedMessage = errors.New("malformed feed message")

const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
)

// ControlMessage is an outbound subscribe/unsubscribe envelope.
type ControlMessage struct {
	Event      string         `json:"event"`
	Feed       string         `json:"feed"`
	ProductIDs []InstrumentID `json:"product_ids"`
}

func NewSubscribe(feed string, id InstrumentID) ControlMessage {
	return ControlMessage{Event: EventSubscribe, Feed: feed, ProductIDs: []InstrumentID{id}}
}

func NewUnsubscribe(feed string, id InstrumentID) ControlMessage {
	return ControlMessage{Event: EventUnsubscribe, Feed: feed, ProductIDs: []InstrumentID{id}}
}

// Snapshot is the full book sent once per subscription. Bids arrive best
// (highest) first, asks best (lowest) first.
type Snapshot struct {
	NumLevels int          `json:"numLevels"`
	ProductID InstrumentID `json:"product_id"`
	Bids      []RawLevel   `json:"bids"`
	Asks      []RawLevel   `json:"asks"`
}

// Delta is an incremental change set. A size of 0 removes the price.
type Delta struct {
	ProductID InstrumentID `json:"product_id"`
	Bids      []RawLevel   `json:"bids"`
	Asks      []RawLevel   `json:"asks"`
}

// Empty reports whether the delta carries no level changes.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Bids) == 0 && len(d.Asks) == 0)
}

type MessageKind int

const (
	KindIgnored MessageKind = iota
	KindSnapshot
	KindDelta
)

func (k MessageKind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	default:
		return "ignored"
	}
}

// FeedMessage is a classified inbound envelope.
type FeedMessage struct {
	Kind     MessageKind
	Event    string
	Snapshot *Snapshot
	Delta    *Delta
}

// DecodeFeedMessage classifies a raw payload. Envelopes with an "event"
// field carry no book content; envelopes with "numLevels" are snapshots;
// anything else carrying a product id is a delta.
func DecodeFeedMessage(data []byte) (FeedMessage, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return FeedMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	if raw, ok := base["event"]; ok {
		var event string
		_ = json.Unmarshal(raw, &event)
		return FeedMessage{Kind: KindIgnored, Event: event}, nil
	}

	if _, ok := base["numLevels"]; ok {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return FeedMessage{}, fmt.Errorf("%w: snapshot: %v", ErrMalformedMessage, err)
		}
		return FeedMessage{Kind: KindSnapshot, Snapshot: &snap}, nil
	}

	if _, ok := base["product_id"]; !ok {
		return FeedMessage{}, fmt.Errorf("%w: no product_id", ErrMalformedMessage)
	}
	var delta Delta
	if err := json.Unmarshal(data, &delta); err != nil {
		return FeedMessage{}, fmt.Errorf("%w: delta: %v", ErrMalformedMessage, err)
	}
	return FeedMessage{Kind: KindDelta, Delta: &delta}, nil
}
