// Package mapselect turns map clicks into marker coordinates. It holds at
// most one selected point and never touches the network.
package mapselect

import (
	"sync"

	"github.com/pkordes/change-observer/internal/domain"
)

// DefaultCenter is where the map opens when nothing is selected.
var DefaultCenter = domain.Coordinate{Latitude: "30.1895", Longitude: "-85.7232"}

// Selector holds the currently picked coordinate. It is safe for concurrent use.
type Selector struct {
	mu       sync.Mutex
	selected *domain.Coordinate
	onSelect func(domain.Coordinate)
}

// New returns a Selector. When initial parses as a lat/lng pair it starts out
// selected. onSelect, if non-nil, is called after every Click.
func New(initial *domain.Coordinate, onSelect func(domain.Coordinate)) *Selector {
	s := &Selector{onSelect: onSelect}
	if initial != nil {
		if _, _, err := initial.LatLng(); err == nil {
			c := *initial
			s.selected = &c
		}
	}
	return s
}

// Click selects the point at lat/lng, replacing any previous selection, and
// reports it to onSelect. Values are rendered in their shortest round-trip
// decimal form.
func (s *Selector) Click(lat, lng float64) domain.Coordinate {
	c := domain.CoordinateOf(lat, lng)

	s.mu.Lock()
	s.selected = &c
	cb := s.onSelect
	s.mu.Unlock()

	if cb != nil {
		cb(c)
	}
	return c
}

// Selected returns the current selection.
func (s *Selector) Selected() (domain.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return domain.Coordinate{}, false
	}
	return *s.selected, true
}

// Center is the point the map should be centred on: the selection if there
// is one, DefaultCenter otherwise.
func (s *Selector) Center() domain.Coordinate {
	if c, ok := s.Selected(); ok {
		return c
	}
	return DefaultCenter
}
