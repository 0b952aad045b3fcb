package view

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/wroge/wgs84"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/service"
)

// Point is one marker placed on the map. X and Y are EPSG:3857 web-mercator
// metres, the projection slippy-map tiles use.
type Point struct {
	MarkerID string
	Name     string
	Lat, Lng float64
	X, Y     float64
}

// ListView shows every marker. It is safe for concurrent use.
type ListView struct {
	store MarkerReader
	opts  options

	mu      sync.Mutex
	markers []domain.Marker
	err     error
	loaded  bool
	started uint64 // reads begun
	applied uint64 // newest read whose result is shown
	closed  bool
	done    chan struct{}
}

// NewListView returns an unloaded list view over store.
func NewListView(store MarkerReader, opts ...Option) *ListView {
	return &ListView{store: store, opts: newOptions(opts), done: make(chan struct{})}
}

// Load reads the marker list and shows it. A failed read keeps the markers
// shown so far and records the error. Results that arrive after Close, after
// ctx ends, or after a newer read has been applied are dropped.
func (v *ListView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.started++
	seq := v.started
	v.mu.Unlock()

	ms, err := v.store.List(ctx)

	v.mu.Lock()
	if v.closed || seq <= v.applied || ctx.Err() != nil {
		v.mu.Unlock()
		v.opts.log.DebugContext(ctx, "list read discarded", "seq", seq)
		if err != nil {
			return err
		}
		return ctx.Err()
	}
	v.applied = seq
	v.loaded = true
	v.err = err
	if err == nil {
		v.markers = ms
	}
	v.mu.Unlock()

	v.opts.changed()
	return err
}

// Loaded reports whether a read has completed.
func (v *ListView) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Markers returns the markers currently shown, in store order.
func (v *ListView) Markers() []domain.Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.markers)
}

// Err is the error of the last applied read, or nil.
func (v *ListView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Points returns a map point for every marker whose coordinate parses.
// Markers with malformed coordinates are left off the map.
func (v *ListView) Points() []Point {
	ms := v.Markers()
	toMercator := wgs84.EPSG().Transform(4326, 3857)

	points := make([]Point, 0, len(ms))
	for _, m := range ms {
		lat, lng, err := m.Coordinate.LatLng()
		if err != nil {
			v.opts.log.Debug("marker left off the map", "marker_id", m.MarkerID, "error", err)
			continue
		}
		x, y, _ := toMercator(lng, lat, 0)
		points = append(points, Point{
			MarkerID: m.MarkerID,
			Name:     m.Name,
			Lat:      lat,
			Lng:      lng,
			X:        x,
			Y:        y,
		})
	}
	return points
}

// Render writes one line per marker.
func (v *ListView) Render(w io.Writer) error {
	v.mu.Lock()
	ms, err, loaded := slices.Clone(v.markers), v.err, v.loaded
	v.mu.Unlock()

	var b strings.Builder
	switch {
	case !loaded:
		b.WriteString("Loading markers...\n")
	case err != nil && len(ms) == 0:
		fmt.Fprintf(&b, "%s\n", domain.UserMessage(err, service.MsgListFetchFail))
	case len(ms) == 0:
		b.WriteString("No markers.\n")
	default:
		for _, m := range ms {
			fmt.Fprintf(&b, "%s  %s  (%s)  %d subscriber(s)\n",
				m.MarkerID, titleOf(m), m.Coordinate, len(m.SubscribedEmails))
		}
	}
	_, werr := io.WriteString(w, b.String())
	return werr
}

// adopt shows the list the cache holds now, without reading the store, and
// drops reads begun before it.
func (v *ListView) adopt(ctx context.Context) {
	ms, ok := v.store.PeekList()
	if !ok {
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.started++
	v.applied = v.started
	v.loaded = true
	v.err = nil
	v.markers = ms
	v.mu.Unlock()

	v.opts.log.DebugContext(ctx, "list refreshed from cache", "count", len(ms))
	v.opts.changed()
}

// Watch shows every refetched list and re-reads the list every time it is
// invalidated, until ctx ends or the view is closed.
func (v *ListView) Watch(ctx context.Context) error {
	return watch(ctx, v.store, service.MarkersKey(), v.done, func(ctx context.Context, t cache.EventType) {
		if t == cache.Updated {
			v.adopt(ctx)
			return
		}
		_ = v.Load(ctx)
	})
}

// Close unmounts the view. Reads still in flight complete but are not shown.
func (v *ListView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.done)
	}
}
