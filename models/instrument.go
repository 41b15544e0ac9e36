package models

import (
	"errors"
	"fmt"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

// InstrumentID identifies a tradable product on the feed.
type InstrumentID string

const (
	InstrumentXBTUSD InstrumentID = "PI_XBTUSD"
	InstrumentETHUSD InstrumentID = "PI_ETHUSD"
)

// Instrument carries the display grouping options of a product.
type Instrument struct {
	ID               InstrumentID `yaml:"id" json:"id"`
	DefaultGroupSize float64      `yaml:"default_group_size" json:"default_group_size"`
	GroupSizes       []float64    `yaml:"group_sizes" json:"group_sizes"`
}

// AllowsGroupSize reports whether size is one of the instrument's group sizes.
func (i Instrument) AllowsGroupSize(size float64) bool {
	for _, g := range i.GroupSizes {
		if g == size {
			return true
		}
	}
	return false
}

// DefaultInstruments returns the instrument table used when the
// configuration does not provide one.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{ID: InstrumentXBTUSD, DefaultGroupSize: 0.5, GroupSizes: []float64{0.5, 1, 2.5}},
		{ID: InstrumentETHUSD, DefaultGroupSize: 0.05, GroupSizes: []float64{0.05, 0.1, 0.25}},
	}
}

// Instruments is an ordered instrument table.
type Instruments []Instrument

// Lookup finds an instrument by id.
func (t Instruments) Lookup(id InstrumentID) (Instrument, error) {
	for _, inst := range t {
		if inst.ID == id {
			return inst, nil
		}
	}
	return Instrument{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, id)
}

// Next returns the instrument following id, wrapping around. With two
// instruments this toggles between them.
func (t Instruments) Next(id InstrumentID) (Instrument, error) {
	for i, inst := range t {
		if inst.ID == id {
			return t[(i+1)%len(t)], nil
		}
	}
	return Instrument{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, id)
}

// Validate checks that every instrument has a usable group size table.
func (t Instruments) Validate() error {
	if len(t) == 0 {
		return errors.New("at least one instrument is required")
	}
	seen := make(map[InstrumentID]struct{}, len(t))
	for _, inst := range t {
		if inst.ID == "" {
			return errors.New("instrument id is required")
		}
		if _, dup := seen[inst.ID]; dup {
			return fmt.Errorf("instrument %q declared twice", inst.ID)
		}
		seen[inst.ID] = struct{}{}
		if len(inst.GroupSizes) == 0 {
			return fmt.Errorf("instrument %q has no group sizes", inst.ID)
		}
		for _, g := range inst.GroupSizes {
			if g <= 0 {
				return fmt.Errorf("instrument %q has non-positive group size %v", inst.ID, g)
			}
		}
		if !inst.AllowsGroupSize(inst.DefaultGroupSize) {
			return fmt.Errorf("instrument %q default group size %v is not in its group sizes", inst.ID, inst.DefaultGroupSize)
		}
	}
	return nil
}
