package view_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/change-observer/internal/cache"
	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/service"
	"github.com/pkordes/change-observer/internal/view"
)

func listOf(ms ...domain.Marker) *mockStore {
	return &mockStore{list: func(context.Context) ([]domain.Marker, error) { return ms, nil }}
}

func TestList_RenderStates(t *testing.T) {
	v := view.NewListView(listOf())
	assert.Equal(t, "Loading markers...\n", render(t, v))

	require.NoError(t, v.Load(context.Background()))
	assert.True(t, v.Loaded())
	assert.Equal(t, "No markers.\n", render(t, v))
}

func TestList_RenderMarkers(t *testing.T) {
	unnamed := sampleMarker("m-2")
	unnamed.Name = ""
	unnamed.SubscribedEmails = nil
	v := view.NewListView(listOf(sampleMarker("m-1"), unnamed))
	require.NoError(t, v.Load(context.Background()))

	assert.Equal(t,
		"m-1  Harbor  (30.1895, -85.7232)  1 subscriber(s)\n"+
			"m-2  Untitled Location  (30.1895, -85.7232)  0 subscriber(s)\n",
		render(t, v))
}

func TestList_FailedReadKeepsMarkers(t *testing.T) {
	fail := false
	store := &mockStore{list: func(context.Context) ([]domain.Marker, error) {
		if fail {
			return nil, &domain.ServerError{Op: "List", Status: 503}
		}
		return []domain.Marker{sampleMarker("m-1")}, nil
	}}
	v := view.NewListView(store)
	require.NoError(t, v.Load(context.Background()))

	fail = true
	require.ErrorIs(t, v.Load(context.Background()), domain.ErrServer)

	assert.Len(t, v.Markers(), 1)
	assert.Error(t, v.Err())
}

func TestList_FailedFirstReadShowsMessage(t *testing.T) {
	store := &mockStore{list: func(context.Context) ([]domain.Marker, error) {
		return nil, errors.New("boom")
	}}
	v := view.NewListView(store)

	require.Error(t, v.Load(context.Background()))

	assert.Equal(t, service.MsgListFetchFail+"\n", render(t, v))
}

func TestList_Points(t *testing.T) {
	origin := sampleMarker("origin")
	origin.Coordinate = domain.Coordinate{Latitude: "0", Longitude: "0"}
	east := sampleMarker("east")
	east.Coordinate = domain.Coordinate{Latitude: "0", Longitude: "90"}
	broken := sampleMarker("broken")
	broken.Coordinate = domain.Coordinate{Latitude: "north", Longitude: "1"}
	v := view.NewListView(listOf(origin, broken, east), view.WithLogger(quietLogger()))
	require.NoError(t, v.Load(context.Background()))

	points := v.Points()

	require.Len(t, points, 2, "markers with malformed coordinates are skipped")
	assert.Equal(t, "origin", points[0].MarkerID)
	assert.InDelta(t, 0, points[0].X, 1e-6)
	assert.InDelta(t, 0, points[0].Y, 1e-6)
	assert.Equal(t, "east", points[1].MarkerID)
	assert.InDelta(t, 90, points[1].Lng, 1e-9)
	assert.InDelta(t, 10018754.17, points[1].X, 1)
	assert.InDelta(t, 0, points[1].Y, 1e-6)
}

func TestList_PointsNorthernHemisphere(t *testing.T) {
	v := view.NewListView(listOf(sampleMarker("m-1")))
	require.NoError(t, v.Load(context.Background()))

	p := v.Points()[0]

	assert.InDelta(t, 30.1895, p.Lat, 1e-9)
	assert.Less(t, p.X, 0.0)
	assert.Greater(t, p.Y, 0.0)
}

func TestList_WatchReloadsOnInvalidate(t *testing.T) {
	n := 0
	store := &mockStore{list: func(context.Context) ([]domain.Marker, error) {
		n++
		ms := make([]domain.Marker, n)
		for i := range ms {
			ms[i] = sampleMarker("m")
		}
		return ms, nil
	}}
	changed := make(chan struct{}, 4)
	v := view.NewListView(store, view.WithOnChange(func() { changed <- struct{}{} }))
	require.NoError(t, v.Load(context.Background()))
	<-changed

	watched := make(chan error, 1)
	go func() { watched <- v.Watch(context.Background()) }()
	store.feed(service.MarkersKey()) <- cache.Event{Key: service.MarkersKey(), Type: cache.Invalidated}
	<-changed

	assert.Len(t, v.Markers(), 2)
	v.Close()
	assert.NoError(t, <-watched)
}

func TestList_WatchShowsRefetchedListWithoutReading(t *testing.T) {
	reads := 0
	store := &mockStore{
		list: func(context.Context) ([]domain.Marker, error) {
			reads++
			return []domain.Marker{sampleMarker("m-1")}, nil
		},
		peekList: func() ([]domain.Marker, bool) {
			return []domain.Marker{sampleMarker("m-1"), sampleMarker("m-2")}, true
		},
	}
	changed := make(chan struct{}, 4)
	v := view.NewListView(store, view.WithLogger(quietLogger()), view.WithOnChange(func() { changed <- struct{}{} }))
	require.NoError(t, v.Load(context.Background()))
	<-changed

	watched := make(chan error, 1)
	go func() { watched <- v.Watch(context.Background()) }()
	store.feed(service.MarkersKey()) <- cache.Event{Key: service.MarkersKey(), Type: cache.Updated}
	<-changed

	assert.Len(t, v.Markers(), 2)
	v.Close()
	assert.NoError(t, <-watched)
	assert.Equal(t, 1, reads)
}
