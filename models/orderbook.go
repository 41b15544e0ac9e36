package models

import (
	"encoding/json"
	"fmt"
)

// Level represents resting liquidity at a single price.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// AnnotatedLevel is a Level with its running depth on one side of the book.
type AnnotatedLevel struct {
	Level
	Total        float64 `json:"total"`
	DepthPercent float64 `json:"depth_percent"`
}

// RawLevel is the [price, size] pair used on the wire.
type RawLevel [2]float64

// UnmarshalJSON rejects pairs that do not carry exactly a price and a size.
func (r *RawLevel) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: level has %d elements", ErrMalformedMessage, len(pair))
	}
	r[0], r[1] = pair[0], pair[1]
	return nil
}

func (r RawLevel) Level() Level {
	return Level{Price: r[0], Size: r[1]}
}

// ToLevels converts wire pairs into levels preserving order.
func ToLevels(raw []RawLevel) []Level {
	levels := make([]Level, len(raw))
	for i, r := range raw {
		levels[i] = r.Level()
	}
	return levels
}
