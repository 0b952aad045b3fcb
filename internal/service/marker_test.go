package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/repo"
	"github.com/pkordes/change-observer/internal/service"
)

// mockMarkerRepo is a hand-written test double for repo.MarkerRepo.
// Each method is a function field; set only the ones your test needs.
// Calling an unset method panics, which makes unexpected calls obvious.
type mockMarkerRepo struct {
	create  func(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error)
	getByID func(ctx context.Context, id string) (domain.Marker, error)
	list    func(ctx context.Context) ([]domain.Marker, error)
	update  func(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error)
	delete  func(ctx context.Context, id string) error
}

func (m *mockMarkerRepo) Create(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error) {
	return m.create(ctx, draft)
}
func (m *mockMarkerRepo) GetByID(ctx context.Context, id string) (domain.Marker, error) {
	return m.getByID(ctx, id)
}
func (m *mockMarkerRepo) List(ctx context.Context) ([]domain.Marker, error) {
	return m.list(ctx)
}
func (m *mockMarkerRepo) Update(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error) {
	return m.update(ctx, id, patch)
}
func (m *mockMarkerRepo) Delete(ctx context.Context, id string) error {
	return m.delete(ctx, id)
}

// compile-time check: mockMarkerRepo must satisfy repo.MarkerRepo.
var _ repo.MarkerRepo = (*mockMarkerRepo)(nil)

// notification is one call to the recording notifier.
type notification struct {
	Kind    service.NotificationKind
	Message string
}

// sinks records notifications and navigations.
type sinks struct {
	mu       sync.Mutex
	notes    []notification
	navigate []string
}

func (s *sinks) Notify(kind service.NotificationKind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, notification{kind, msg})
}

func (s *sinks) MarkerDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigate = append(s.navigate, id)
}

func (s *sinks) notifications() []notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification(nil), s.notes...)
}

var (
	_ service.Notifier  = (*sinks)(nil)
	_ service.Navigator = (*sinks)(nil)
)

// ---- helpers ---------------------------------------------------------------

func newService(t *testing.T, r repo.MarkerRepo, opts ...service.Option) (*service.MarkerService, *cache.Cache, *sinks) {
	t.Helper()
	c := cache.New(cache.WithStaleTime(time.Hour))
	t.Cleanup(c.Close)
	s := &sinks{}
	opts = append([]service.Option{
		service.WithNotifier(s),
		service.WithNavigator(s),
		service.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)
	return service.NewMarkerService(r, c, opts...), c, s
}

func sampleMarker(id string) domain.Marker {
	return domain.Marker{
		MarkerID:         id,
		Name:             "Harbor",
		Coordinate:       domain.Coordinate{Latitude: "30.1895", Longitude: "-85.7232"},
		SubscribedEmails: []string{"a@x.com"},
		DateCreated:      domain.Timestamp{Time: time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)},
	}
}

// primeCache reads the list and the detail of id so both keys hold data.
func primeCache(t *testing.T, svc *service.MarkerService, id string) {
	t.Helper()
	_, err := svc.List(context.Background())
	require.NoError(t, err)
	if id != "" {
		_, err = svc.GetByID(context.Background(), id)
		require.NoError(t, err)
	}
}

// ---- Create ----------------------------------------------------------------

func TestMarkerService_Create_InvalidatesListAndNotifies(t *testing.T) {
	r := &mockMarkerRepo{
		list: func(context.Context) ([]domain.Marker, error) { return nil, nil },
		create: func(_ context.Context, d domain.MarkerDraft) (domain.Marker, error) {
			m := sampleMarker("new-id")
			m.Name = d.Name
			return m, nil
		},
	}
	svc, c, s := newService(t, r)
	primeCache(t, svc, "")

	got, err := svc.Create(context.Background(), sampleMarker("").Draft())

	require.NoError(t, err)
	assert.Equal(t, "new-id", got.MarkerID)
	_, fresh := c.Peek(service.MarkersKey())
	assert.False(t, fresh, "list must be invalidated")
	_, detail := c.Peek(service.MarkerKey("new-id"))
	assert.False(t, detail, "no detail entry is created")
	assert.Equal(t, []notification{{service.NotifySuccess, service.MsgAdded}}, s.notifications())
}

func TestMarkerService_Create_FailureUsesServerMessage(t *testing.T) {
	r := &mockMarkerRepo{
		create: func(context.Context, domain.MarkerDraft) (domain.Marker, error) {
			return domain.Marker{}, &domain.ServerError{Op: "create", Status: 422, Message: "coordinate taken"}
		},
	}
	svc, _, s := newService(t, r)

	_, err := svc.Create(context.Background(), sampleMarker("").Draft())

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []notification{{service.NotifyError, "coordinate taken"}}, s.notifications())
}

func TestMarkerService_Create_TransportFailureUsesDefault(t *testing.T) {
	r := &mockMarkerRepo{
		create: func(context.Context, domain.MarkerDraft) (domain.Marker, error) {
			return domain.Marker{}, &domain.TransportError{Op: "create", Err: errors.New("refused")}
		},
	}
	svc, _, s := newService(t, r)

	_, err := svc.Create(context.Background(), sampleMarker("").Draft())

	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, []notification{{service.NotifyError, service.MsgAddFailed}}, s.notifications())
}

// ---- GetByID ---------------------------------------------------------------

func TestMarkerService_GetByID_EmptyIDNeverDispatches(t *testing.T) {
	svc, _, s := newService(t, &mockMarkerRepo{}) // any repo call would panic

	_, err := svc.GetByID(context.Background(), "")

	assert.ErrorIs(t, err, service.ErrMissingMarkerID)
	assert.Empty(t, s.notifications())
}

func TestMarkerService_GetByID_CachesAndIsSilent(t *testing.T) {
	calls := 0
	r := &mockMarkerRepo{
		getByID: func(_ context.Context, id string) (domain.Marker, error) {
			calls++
			return sampleMarker(id), nil
		},
	}
	svc, _, s := newService(t, r)

	for range 2 {
		got, err := svc.GetByID(context.Background(), "m-1")
		require.NoError(t, err)
		assert.Equal(t, "m-1", got.MarkerID)
	}
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.notifications())
}

func TestMarkerService_GetByID_ReadNotificationsOption(t *testing.T) {
	r := &mockMarkerRepo{
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
		list:    func(context.Context) ([]domain.Marker, error) { return nil, nil },
	}
	svc, _, s := newService(t, r, service.WithReadNotifications(true))

	_, err := svc.GetByID(context.Background(), "m-1")
	require.NoError(t, err)
	_, err = svc.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []notification{
		{service.NotifySuccess, service.MsgLoaded},
		{service.NotifySuccess, service.MsgListLoaded},
	}, s.notifications())
}

func TestMarkerService_GetByID_NotFound(t *testing.T) {
	r := &mockMarkerRepo{
		getByID: func(context.Context, string) (domain.Marker, error) {
			return domain.Marker{}, &domain.ServerError{Op: "get", Status: http.StatusNotFound}
		},
	}
	svc, _, s := newService(t, r)

	_, err := svc.GetByID(context.Background(), "nope")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []notification{{service.NotifyError, service.MsgFetchFailed}}, s.notifications())
}

func TestMarkerService_GetByID_CallerCancelIsSilent(t *testing.T) {
	r := &mockMarkerRepo{
		getByID: func(ctx context.Context, id string) (domain.Marker, error) {
			<-ctx.Done() // never answers until the cache closes
			return domain.Marker{}, ctx.Err()
		},
	}
	svc, _, s := newService(t, r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetByID(ctx, "m-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.notifications())
}

// ---- List ------------------------------------------------------------------

func TestMarkerService_List_ErrorIsNeverPartial(t *testing.T) {
	r := &mockMarkerRepo{
		list: func(context.Context) ([]domain.Marker, error) {
			return []domain.Marker{sampleMarker("1")}, &domain.ServerError{Status: 500, Message: "scan interrupted"}
		},
	}
	svc, _, s := newService(t, r)

	got, err := svc.List(context.Background())

	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrServer)
	assert.Equal(t, []notification{{service.NotifyError, "scan interrupted"}}, s.notifications())
}

func TestMarkerService_List_ReturnsCopy(t *testing.T) {
	r := &mockMarkerRepo{
		list: func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("1")}, nil },
	}
	svc, _, _ := newService(t, r)

	first, err := svc.List(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Harbor", second[0].Name)
}

func TestMarkerService_Peek_NeverFetches(t *testing.T) {
	r := &mockMarkerRepo{
		list:    func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("m-1")}, nil },
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
	}
	svc, c, _ := newService(t, r)

	_, ok := svc.PeekList()
	assert.False(t, ok, "nothing cached yet")
	_, ok = svc.PeekMarker("m-1")
	assert.False(t, ok)

	primeCache(t, svc, "m-1")

	ms, ok := svc.PeekList()
	require.True(t, ok)
	ms[0].Name = "mutated"
	again, _ := svc.PeekList()
	assert.Equal(t, "Harbor", again[0].Name, "peeked list is a copy")

	m, ok := svc.PeekMarker("m-1")
	require.True(t, ok)
	assert.Equal(t, sampleMarker("m-1"), m)

	c.Invalidate(service.MarkerKey("m-1"))
	_, ok = svc.PeekMarker("m-1")
	assert.False(t, ok, "invalidated entries are not peeked")
}

// ---- Update ----------------------------------------------------------------

func TestMarkerService_Update_InvalidatesBothKeys(t *testing.T) {
	r := &mockMarkerRepo{
		list:    func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("m-1")}, nil },
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
		update: func(_ context.Context, id string, p domain.MarkerPatch) (domain.Marker, error) {
			return p.Apply(sampleMarker(id)), nil
		},
	}
	svc, c, s := newService(t, r)
	primeCache(t, svc, "m-1")

	name := "Renamed"
	got, err := svc.Update(context.Background(), "m-1", domain.MarkerPatch{Name: &name})

	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	_, listFresh := c.Peek(service.MarkersKey())
	_, detailFresh := c.Peek(service.MarkerKey("m-1"))
	assert.False(t, listFresh)
	assert.False(t, detailFresh)
	assert.Equal(t, []notification{{service.NotifySuccess, service.MsgEdited}}, s.notifications())
}

func TestMarkerService_Update_FailureLeavesCache(t *testing.T) {
	r := &mockMarkerRepo{
		list:    func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("m-1")}, nil },
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
		update: func(context.Context, string, domain.MarkerPatch) (domain.Marker, error) {
			return domain.Marker{}, &domain.ServerError{Status: 500}
		},
	}
	svc, c, s := newService(t, r)
	primeCache(t, svc, "m-1")

	name := "Renamed"
	_, err := svc.Update(context.Background(), "m-1", domain.MarkerPatch{Name: &name})

	require.ErrorIs(t, err, domain.ErrServer)
	_, listFresh := c.Peek(service.MarkersKey())
	v, detailFresh := c.Peek(service.MarkerKey("m-1"))
	assert.True(t, listFresh)
	require.True(t, detailFresh)
	assert.Equal(t, "Harbor", v.(domain.Marker).Name)
	assert.Equal(t, []notification{{service.NotifyError, service.MsgEditFailed}}, s.notifications())
}

func TestMarkerService_Update_EmptyID(t *testing.T) {
	svc, _, _ := newService(t, &mockMarkerRepo{})
	_, err := svc.Update(context.Background(), "", domain.MarkerPatch{})
	assert.ErrorIs(t, err, service.ErrMissingMarkerID)
}

// ---- Delete ----------------------------------------------------------------

func TestMarkerService_Delete_CascadesAndNavigates(t *testing.T) {
	r := &mockMarkerRepo{
		list:    func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("m-1")}, nil },
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
		delete:  func(context.Context, string) error { return nil },
	}
	svc, c, s := newService(t, r)
	primeCache(t, svc, "m-1")
	events, cancel := svc.Watch(service.MarkerKey("m-1"))
	defer cancel()

	require.NoError(t, svc.Delete(context.Background(), "m-1"))

	assert.Equal(t, cache.Removed, (<-events).Type)
	_, listFresh := c.Peek(service.MarkersKey())
	assert.False(t, listFresh)
	assert.Equal(t, []string{"m-1"}, s.navigate)
	assert.Equal(t, []notification{{service.NotifySuccess, service.MsgDeleted}}, s.notifications())
}

func TestMarkerService_Delete_FailureKeepsEverything(t *testing.T) {
	r := &mockMarkerRepo{
		list:    func(context.Context) ([]domain.Marker, error) { return []domain.Marker{sampleMarker("m-1")}, nil },
		getByID: func(_ context.Context, id string) (domain.Marker, error) { return sampleMarker(id), nil },
		delete: func(context.Context, string) error {
			return &domain.TransportError{Op: "delete", Err: context.DeadlineExceeded}
		},
	}
	svc, c, s := newService(t, r)
	primeCache(t, svc, "m-1")

	err := svc.Delete(context.Background(), "m-1")

	require.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, detailFresh := c.Peek(service.MarkerKey("m-1"))
	assert.True(t, detailFresh)
	assert.Empty(t, s.navigate)
	assert.Equal(t, []notification{{service.NotifyError, service.MsgDeleteFailed}}, s.notifications())
}

func TestMarkerService_FailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	r := &mockMarkerRepo{
		delete: func(context.Context, string) error { return &domain.ServerError{Op: "delete", Status: 404} },
	}
	c := cache.New()
	t.Cleanup(c.Close)
	svc := service.NewMarkerService(r, c, service.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	_ = svc.Delete(context.Background(), "m-9")

	assert.Contains(t, buf.String(), `"op":"Delete"`)
	assert.Contains(t, buf.String(), `"marker_id":"m-9"`)
}

func TestNotifierFunc(t *testing.T) {
	var got string
	service.NotifierFunc(func(_ service.NotificationKind, msg string) { got = msg }).Notify(service.NotifySuccess, "hi")
	assert.Equal(t, "hi", got)
}
