// Package view holds the read-only marker views: the list shown on the map
// and the detail page of one marker. Views read through the store client,
// re-read when their cache entry is invalidated, pick up refetched values from
// the cache, and stop applying results once closed.
package view

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/form"
	"github.com/pkordes/change-observer/internal/schema"
)

// MarkerReader is the read side of the store client.
// *service.MarkerService implements it.
type MarkerReader interface {
	List(ctx context.Context) ([]domain.Marker, error)
	GetByID(ctx context.Context, id string) (domain.Marker, error)
	PeekList() ([]domain.Marker, bool)
	PeekMarker(id string) (domain.Marker, bool)
	Watch(key cache.Key) (<-chan cache.Event, func())
}

// MarkerStore is everything the detail view needs: reads, the form's
// mutations and deletion.
type MarkerStore interface {
	MarkerReader
	form.Saver
	Delete(ctx context.Context, id string) error
}

type options struct {
	log      *slog.Logger
	now      func() time.Time
	policy   schema.Policy
	onChange func()
}

// Option configures a view.
type Option func(*options)

// WithLogger sets the logger for discarded and failed reads.
func WithLogger(log *slog.Logger) Option { return func(o *options) { o.log = log } }

// WithClock sets the time source used for relative dates.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithPolicy sets the validation policy of forms opened from the view.
func WithPolicy(p schema.Policy) Option { return func(o *options) { o.policy = p } }

// WithOnChange registers fn to run after every state change the view applies.
func WithOnChange(fn func()) Option { return func(o *options) { o.onChange = fn } }

func newOptions(opts []Option) options {
	o := options{log: slog.Default(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) changed() {
	if o.onChange != nil {
		o.onChange()
	}
}

// watch delivers the events of key to handle until ctx ends, done is closed,
// or the subscription goes away.
func watch(ctx context.Context, r MarkerReader, key cache.Key, done <-chan struct{}, handle func(context.Context, cache.EventType)) error {
	events, cancel := r.Watch(key)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			handle(ctx, ev.Type)
		}
	}
}
