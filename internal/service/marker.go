// Package service is the marker store client: it runs every remote operation
// through the repo, keeps the query cache consistent with mutations, and
// reports each outcome to the injected notifier.
// No HTTP lives here; services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/repo"
)

// ErrMissingMarkerID is returned, without contacting the store, when an
// operation that needs a marker id gets an empty one.
var ErrMissingMarkerID = errors.New("missing marker id")

// Cache key kinds.
const (
	KindMarkers = "markers"
	KindMarker  = "marker"
)

// MarkersKey is the cache key of the full marker list.
func MarkersKey() cache.Key { return cache.Key{Kind: KindMarkers} }

// MarkerKey is the cache key of one marker.
func MarkerKey(id string) cache.Key { return cache.Key{Kind: KindMarker, ID: id} }

// MarkerService implements the marker store client.
type MarkerService struct {
	repo        repo.MarkerRepo
	cache       *cache.Cache
	notifier    Notifier
	nav         Navigator
	log         *slog.Logger
	notifyReads bool
}

// Option configures a MarkerService.
type Option func(*MarkerService)

// WithNotifier sets the notification sink. The default discards notifications.
func WithNotifier(n Notifier) Option { return func(s *MarkerService) { s.notifier = n } }

// WithNavigator sets the navigation sink told about deletions.
func WithNavigator(n Navigator) Option { return func(s *MarkerService) { s.nav = n } }

// WithLogger sets the logger for failed operations.
func WithLogger(log *slog.Logger) Option { return func(s *MarkerService) { s.log = log } }

// WithReadNotifications makes successful reads emit a success notification.
// Reads are silent by default.
func WithReadNotifications(on bool) Option { return func(s *MarkerService) { s.notifyReads = on } }

// NewMarkerService constructs a MarkerService backed by r, caching reads in c.
func NewMarkerService(r repo.MarkerRepo, c *cache.Cache, opts ...Option) *MarkerService {
	s := &MarkerService{
		repo:     r,
		cache:    c,
		notifier: nopNotifier{},
		nav:      nopNavigator{},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create persists a new marker. On success the marker list is invalidated;
// no detail entry is created until the marker is read.
func (s *MarkerService) Create(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error) {
	m, err := s.repo.Create(ctx, draft)
	if err != nil {
		return domain.Marker{}, s.fail(ctx, "Create", "", MsgAddFailed, err)
	}

	s.cache.Invalidate(MarkersKey())
	s.notifier.Notify(NotifySuccess, MsgAdded)
	return m, nil
}

// GetByID returns one marker, from the cache when possible.
func (s *MarkerService) GetByID(ctx context.Context, id string) (domain.Marker, error) {
	if id == "" {
		return domain.Marker{}, fmt.Errorf("service.MarkerService.GetByID: %w", ErrMissingMarkerID)
	}

	m, err := cache.Load(ctx, s.cache, MarkerKey(id), func(ctx context.Context) (domain.Marker, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		return domain.Marker{}, s.failRead(ctx, "GetByID", id, MsgFetchFailed, err)
	}

	if s.notifyReads {
		s.notifier.Notify(NotifySuccess, MsgLoaded)
	}
	return m, nil
}

// List returns every marker, from the cache when possible. The result is
// either the full set or an error, never a partial list.
func (s *MarkerService) List(ctx context.Context) ([]domain.Marker, error) {
	ms, err := cache.Load(ctx, s.cache, MarkersKey(), s.repo.List)
	if err != nil {
		return nil, s.failRead(ctx, "List", "", MsgListFetchFail, err)
	}

	if s.notifyReads {
		s.notifier.Notify(NotifySuccess, MsgListLoaded)
	}
	return slices.Clone(ms), nil
}

// PeekList returns the cached marker list without fetching. ok is false when
// nothing valid is cached.
func (s *MarkerService) PeekList() ([]domain.Marker, bool) {
	v, ok := s.cache.Peek(MarkersKey())
	if !ok {
		return nil, false
	}
	ms, ok := v.([]domain.Marker)
	if !ok {
		return nil, false
	}
	return slices.Clone(ms), true
}

// PeekMarker returns the cached marker with id without fetching.
func (s *MarkerService) PeekMarker(id string) (domain.Marker, bool) {
	v, ok := s.cache.Peek(MarkerKey(id))
	if !ok {
		return domain.Marker{}, false
	}
	m, ok := v.(domain.Marker)
	return m, ok
}

// Update applies patch to the marker with id. On success both the list and
// the marker's detail entry are invalidated.
func (s *MarkerService) Update(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error) {
	if id == "" {
		return domain.Marker{}, fmt.Errorf("service.MarkerService.Update: %w", ErrMissingMarkerID)
	}

	m, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return domain.Marker{}, s.fail(ctx, "Update", id, MsgEditFailed, err)
	}

	s.cache.Invalidate(MarkersKey())
	s.cache.Invalidate(MarkerKey(id))
	s.notifier.Notify(NotifySuccess, MsgEdited)
	return m, nil
}

// Delete removes the marker with id. On success the list is invalidated, the
// detail entry is removed (its subscribers see cache.Removed) and the
// navigator is told to leave the marker's page.
func (s *MarkerService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("service.MarkerService.Delete: %w", ErrMissingMarkerID)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, "Delete", id, MsgDeleteFailed, err)
	}

	s.cache.Invalidate(MarkersKey())
	s.cache.Remove(MarkerKey(id))
	s.nav.MarkerDeleted(id)
	s.notifier.Notify(NotifySuccess, MsgDeleted)
	return nil
}

// Watch subscribes to changes of key. See cache.Cache.Subscribe.
func (s *MarkerService) Watch(key cache.Key) (<-chan cache.Event, func()) {
	return s.cache.Subscribe(key)
}

// fail logs and reports a failed mutation and wraps err for the caller.
// The cache is left untouched.
func (s *MarkerService) fail(ctx context.Context, op, id, fallback string, err error) error {
	s.log.ErrorContext(ctx, "marker operation failed", "op", op, "marker_id", id, "error", err)
	s.notifier.Notify(NotifyError, domain.UserMessage(err, fallback))
	return fmt.Errorf("service.MarkerService.%s: %w", op, err)
}

// failRead is fail for reads, except that a read abandoned by its caller is
// neither logged nor reported.
func (s *MarkerService) failRead(ctx context.Context, op, id, fallback string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("service.MarkerService.%s: %w", op, err)
	}
	return s.fail(ctx, op, id, fallback, err)
}
