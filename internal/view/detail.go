package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/form"
	"github.com/pkordes/change-observer/internal/service"
)

// UntitledLocation is shown for markers without a name.
const UntitledLocation = "Untitled Location"

// ErrNotReady is returned by DetailView.Edit before a marker has been shown.
var ErrNotReady = errors.New("marker not loaded")

// Status is the state of a DetailView.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusNotFound:
		return "not found"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// DetailView shows one marker. It is safe for concurrent use.
type DetailView struct {
	store MarkerStore
	id    string
	opts  options

	mu      sync.Mutex
	status  Status
	marker  domain.Marker
	err     error
	started uint64
	applied uint64
	closed  bool
	done    chan struct{}
}

// NewDetailView returns a loading view of the marker with id.
func NewDetailView(store MarkerStore, id string, opts ...Option) *DetailView {
	return &DetailView{store: store, id: id, opts: newOptions(opts), done: make(chan struct{})}
}

// ID is the marker id the view was opened for.
func (v *DetailView) ID() string { return v.id }

// Load reads the marker. An unknown or empty id moves the view to
// StatusNotFound; any other failure to StatusError. Results that arrive after
// Close, after ctx ends, or after a newer read or a removal are dropped.
func (v *DetailView) Load(ctx context.Context) error {
	v.mu.Lock()
	v.started++
	seq := v.started
	v.mu.Unlock()

	m, err := v.store.GetByID(ctx, v.id)

	v.mu.Lock()
	if v.closed || seq <= v.applied || ctx.Err() != nil {
		v.mu.Unlock()
		v.opts.log.DebugContext(ctx, "marker read discarded", "marker_id", v.id, "seq", seq)
		if err != nil {
			return err
		}
		return ctx.Err()
	}
	v.applied = seq
	v.err = err
	switch {
	case err == nil:
		v.status = StatusReady
		v.marker = m
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, service.ErrMissingMarkerID):
		v.status = StatusNotFound
		v.marker = domain.Marker{}
	default:
		v.status = StatusError
	}
	v.mu.Unlock()

	v.opts.changed()
	return err
}

// removed shows the marker as gone and drops reads begun before the removal.
func (v *DetailView) removed() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.started++
	v.applied = v.started
	v.status = StatusNotFound
	v.marker = domain.Marker{}
	v.err = nil
	v.mu.Unlock()

	v.opts.changed()
}

// adopt shows the marker the cache holds now, without reading the store, and
// drops reads begun before it.
func (v *DetailView) adopt(ctx context.Context) {
	m, ok := v.store.PeekMarker(v.id)
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
	v.status = StatusReady
	v.marker = m
	v.err = nil
	v.mu.Unlock()

	v.opts.log.DebugContext(ctx, "marker refreshed from cache", "marker_id", v.id)
	v.opts.changed()
}

// Status reports what the view is showing.
func (v *DetailView) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Marker returns the marker shown. ok is false unless the status is StatusReady.
func (v *DetailView) Marker() (m domain.Marker, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.marker, v.status == StatusReady
}

// Err is the error of the last applied read, or nil.
func (v *DetailView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Title is the marker name, or UntitledLocation.
func (v *DetailView) Title() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return titleOf(v.marker)
}

func titleOf(m domain.Marker) string {
	if strings.TrimSpace(m.Name) == "" {
		return UntitledLocation
	}
	return m.Name
}

// Render writes the marker page. Every optional field may be missing.
func (v *DetailView) Render(w io.Writer) error {
	v.mu.Lock()
	status, m, err := v.status, v.marker, v.err
	v.mu.Unlock()

	var b strings.Builder
	switch status {
	case StatusLoading:
		b.WriteString("Loading marker...\n")
	case StatusNotFound:
		b.WriteString("Marker not found.\n")
	case StatusError:
		fmt.Fprintf(&b, "%s\n", domain.UserMessage(err, service.MsgFetchFailed))
	case StatusReady:
		v.renderMarker(&b, m)
	}
	_, werr := io.WriteString(w, b.String())
	return werr
}

func (v *DetailView) renderMarker(b *strings.Builder, m domain.Marker) {
	fmt.Fprintf(b, "%s\n", titleOf(m))
	if !m.Coordinate.IsZero() {
		fmt.Fprintf(b, "Location: %s\n", m.Coordinate)
	}
	if !m.DateCreated.IsZero() {
		fmt.Fprintf(b, "tracking created %s\n", humanize.RelTime(m.DateCreated.Time, v.opts.now(), "ago", "from now"))
	}
	if len(m.SubscribedEmails) > 0 {
		fmt.Fprintf(b, "Subscribers: %s\n", strings.Join(m.SubscribedEmails, ", "))
	}

	b.WriteString("\nCurrent image:\n")
	if m.CurrentImage == nil || m.CurrentImage.ImageURL == "" {
		b.WriteString("  none\n")
	} else {
		writeImage(b, *m.CurrentImage)
	}

	b.WriteString("\nDetected objects:\n")
	if len(m.DetectedObjects) == 0 {
		b.WriteString("  none\n")
	}
	for _, d := range m.DetectedObjects {
		objects := "nothing"
		if len(d.DetectedObjects) > 0 {
			objects = strings.Join(d.DetectedObjects, ", ")
		}
		fmt.Fprintf(b, "  %s: %s\n", formatDate(d.DateDetected), objects)
	}
	if changes, ok := domain.LatestChanges(m); ok {
		for _, line := range strings.Split(changes.String(), "\n") {
			fmt.Fprintf(b, "  %s\n", line)
		}
	}

	if len(m.HistoricalImages) > 0 {
		b.WriteString("\nHistorical images:\n")
		for _, img := range m.HistoricalImages {
			writeImage(b, img)
		}
	}
}

func writeImage(b *strings.Builder, img domain.Image) {
	if img.Description == "" {
		fmt.Fprintf(b, "  %s\n", img.ImageURL)
		return
	}
	fmt.Fprintf(b, "  %s (%s)\n", img.Description, img.ImageURL)
}

func formatDate(t domain.Timestamp) string {
	if t.IsZero() {
		return "unknown date"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// Edit returns an edit form pre-filled with the marker shown.
func (v *DetailView) Edit() (*form.MarkerForm, error) {
	m, ok := v.Marker()
	if !ok {
		return nil, fmt.Errorf("view.DetailView.Edit %s: %w", v.id, ErrNotReady)
	}
	return form.NewEdit(v.store, &m, form.WithPolicy(v.opts.policy)), nil
}

// Delete deletes the marker through the store client. On success the store
// client removes the cached marker, which a running Watch turns into
// StatusNotFound.
func (v *DetailView) Delete(ctx context.Context) error {
	if err := v.store.Delete(ctx, v.id); err != nil {
		return fmt.Errorf("view.DetailView.Delete: %w", err)
	}
	return nil
}

// Watch shows every refetched marker, re-reads the marker when it is
// invalidated and shows it as not found when it is removed, until ctx ends
// or the view is closed.
func (v *DetailView) Watch(ctx context.Context) error {
	return watch(ctx, v.store, service.MarkerKey(v.id), v.done, func(ctx context.Context, t cache.EventType) {
		switch t {
		case cache.Removed:
			v.removed()
		case cache.Updated:
			v.adopt(ctx)
		default:
			_ = v.Load(ctx)
		}
	})
}

// Close unmounts the view. Reads still in flight complete but are not shown.
func (v *DetailView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.done)
	}
}
