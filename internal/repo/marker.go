// Package repo contains all remote marker store access for the client.
// It speaks HTTP+JSON to the store and maps replies onto domain types and
// domain errors. No caching or notification logic lives here.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkordes/change-observer/internal/domain"
)

const instrumentationName = "github.com/pkordes/change-observer/internal/repo"

// doer is the minimal interface satisfied by *http.Client.
// Accepting it instead of *http.Client lets tests stub the transport entirely.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MarkerRepo defines the remote operations on markers.
// The service layer depends on this interface, not the HTTP implementation,
// which allows the service to be unit-tested with a mock.
type MarkerRepo interface {
	// Create sends a draft to the store and returns the persisted marker
	// with its store-assigned id and creation date.
	Create(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error)

	// GetByID fetches one marker. Returns domain.ErrNotFound when the store
	// has no marker with that id.
	GetByID(ctx context.Context, id string) (domain.Marker, error)

	// List returns every marker. A null body is an empty list.
	List(ctx context.Context) ([]domain.Marker, error)

	// Update applies patch to the marker with id and returns the stored result.
	Update(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error)

	// Delete removes the marker with id. The response body is ignored.
	Delete(ctx context.Context, id string) error
}

// httpMarkerRepo is the HTTP implementation of MarkerRepo.
type httpMarkerRepo struct {
	base   *url.URL
	client doer
	tracer trace.Tracer
}

// NewMarkerRepo constructs a MarkerRepo talking to the store at baseURL.
// A nil client means http.DefaultClient; timeouts are the client's concern.
func NewMarkerRepo(baseURL string, client doer) (MarkerRepo, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("repo.NewMarkerRepo: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("repo.NewMarkerRepo: base url %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpMarkerRepo{base: u, client: client, tracer: otel.Tracer(instrumentationName)}, nil
}

// draftBody is the POST /marker payload.
type draftBody struct {
	Name             string                `json:"name"`
	Coordinate       domain.Coordinate     `json:"coordinate"`
	SubscribedEmails []openapi_types.Email `json:"subscribedEmails"`
}

// patchBody is the PUT /marker payload. Nil fields are omitted.
type patchBody struct {
	Name             *string                `json:"name,omitempty"`
	Coordinate       *domain.Coordinate     `json:"coordinate,omitempty"`
	SubscribedEmails *[]openapi_types.Email `json:"subscribedEmails,omitempty"`
}

// errorBody is the store's error payload. Older handlers use "error".
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func toEmails(in []string) []openapi_types.Email {
	out := make([]openapi_types.Email, len(in))
	for i, e := range in {
		out[i] = openapi_types.Email(e)
	}
	return out
}

// Create sends POST /marker. 200 and 201 are both accepted.
func (r *httpMarkerRepo) Create(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error) {
	const op = "repo.MarkerRepo.Create"
	ctx, span := r.startSpan(ctx, op, "")
	defer span.End()

	body := draftBody{
		Name:             draft.Name,
		Coordinate:       draft.Coordinate,
		SubscribedEmails: toEmails(draft.SubscribedEmails),
	}
	var m domain.Marker
	if err := r.do(ctx, op, http.MethodPost, "/marker", "", body, &m); err != nil {
		return domain.Marker{}, endSpan(span, err)
	}
	if m.MarkerID == "" {
		return domain.Marker{}, endSpan(span, &domain.ServerError{Op: op, Status: http.StatusOK, Message: "created marker has no markerId"})
	}
	return m, nil
}

// GetByID sends GET /marker?markerId=id. A 2xx reply whose body is empty,
// null, or lacks a markerId is treated as not found.
func (r *httpMarkerRepo) GetByID(ctx context.Context, id string) (domain.Marker, error) {
	const op = "repo.MarkerRepo.GetByID"
	ctx, span := r.startSpan(ctx, op, id)
	defer span.End()

	var m *domain.Marker
	if err := r.do(ctx, op, http.MethodGet, "/marker", id, nil, &m); err != nil {
		return domain.Marker{}, endSpan(span, err)
	}
	if m == nil || m.MarkerID == "" {
		return domain.Marker{}, endSpan(span, fmt.Errorf("%s: %w", op, domain.ErrNotFound))
	}
	return *m, nil
}

// List sends GET /markers.
func (r *httpMarkerRepo) List(ctx context.Context) ([]domain.Marker, error) {
	const op = "repo.MarkerRepo.List"
	ctx, span := r.startSpan(ctx, op, "")
	defer span.End()

	var ms []domain.Marker
	if err := r.do(ctx, op, http.MethodGet, "/markers", "", nil, &ms); err != nil {
		return nil, endSpan(span, err)
	}
	if ms == nil {
		ms = []domain.Marker{}
	}
	span.SetAttributes(attribute.Int("marker.count", len(ms)))
	return ms, nil
}

// Update sends PUT /marker?markerId=id with only the patched fields.
// A 2xx reply that carries no marker yields the zero Marker; the store
// accepted the patch and the caller decides how to show it.
func (r *httpMarkerRepo) Update(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error) {
	const op = "repo.MarkerRepo.Update"
	ctx, span := r.startSpan(ctx, op, id)
	defer span.End()

	body := patchBody{Name: patch.Name, Coordinate: patch.Coordinate}
	if patch.SubscribedEmails != nil {
		emails := toEmails(*patch.SubscribedEmails)
		body.SubscribedEmails = &emails
	}
	var m domain.Marker
	if err := r.do(ctx, op, http.MethodPut, "/marker", id, body, &m); err != nil {
		return domain.Marker{}, endSpan(span, err)
	}
	if m.MarkerID == "" {
		return domain.Marker{}, nil
	}
	return m, nil
}

// Delete sends DELETE /marker?markerId=id.
func (r *httpMarkerRepo) Delete(ctx context.Context, id string) error {
	const op = "repo.MarkerRepo.Delete"
	ctx, span := r.startSpan(ctx, op, id)
	defer span.End()

	if err := r.do(ctx, op, http.MethodDelete, "/marker", id, nil, nil); err != nil {
		return endSpan(span, err)
	}
	return nil
}

// do performs one request. in, when non-nil, is sent as the JSON body; out,
// when non-nil, receives the decoded 2xx body. An empty 2xx body leaves out
// untouched.
func (r *httpMarkerRepo) do(ctx context.Context, op, method, path, markerID string, in, out any) error {
	u := r.base.JoinPath(path)
	if markerID != "" {
		q, err := markerIDQuery(markerID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			// openapi_types.Email refuses malformed addresses when marshalling.
			return fmt.Errorf("%s: %w: %v", op, domain.ErrValidation, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.ServerError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.ServerError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}

// markerIDQuery renders the markerId query parameter the way generated
// oapi-codegen clients do.
func markerIDQuery(id string) (url.Values, error) {
	frag, err := runtime.StyleParamWithLocation("form", true, "markerId", runtime.ParamLocationQuery, id)
	if err != nil {
		return nil, fmt.Errorf("encode markerId: %w", err)
	}
	q, err := url.ParseQuery(frag)
	if err != nil {
		return nil, fmt.Errorf("parse markerId: %w", err)
	}
	return q, nil
}

// errorMessage extracts the server-supplied message from an error body,
// preferring "message" over "error". Non-JSON bodies yield "".
func errorMessage(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}

func (r *httpMarkerRepo) startSpan(ctx context.Context, op, markerID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("store.host", r.base.Host)}
	if markerID != "" {
		attrs = append(attrs, attribute.String("marker.id", markerID))
	}
	return r.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// endSpan records err on span and returns it unchanged.
func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	var se *domain.ServerError
	if errors.As(err, &se) {
		span.SetAttributes(attribute.Int("http.response.status_code", se.Status))
	}
	return err
}
