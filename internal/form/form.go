// Package form implements the add/edit marker form: it owns an ephemeral
// draft, validates it with the shared schema, and hands it to the store
// client on submit. The draft only reaches the cache through a successful
// remote mutation.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/mapselect"
	"github.com/pkordes/change-observer/internal/schema"
)

// ErrSubmitting is returned by Submit while a previous submission is in flight.
var ErrSubmitting = errors.New("submission already in progress")

// Saver is the part of the marker store client the form needs.
// *service.MarkerService implements it.
type Saver interface {
	Create(ctx context.Context, draft domain.MarkerDraft) (domain.Marker, error)
	Update(ctx context.Context, id string, patch domain.MarkerPatch) (domain.Marker, error)
}

// Mode says whether the form creates a marker or edits an existing one.
type Mode int

const (
	ModeAdd Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "add"
}

// MarkerForm is safe for concurrent use.
type MarkerForm struct {
	saver  Saver
	policy schema.Policy
	emails *EmailList

	mu         sync.Mutex
	initialRef *domain.Marker // identity of the marker given by the caller
	initial    *domain.Marker // snapshot of it; nil in add mode
	name       string
	coordinate domain.Coordinate
	errs       *domain.ValidationError
	open       bool
	submitting bool
}

// Option configures a MarkerForm.
type Option func(*MarkerForm)

// WithPolicy sets the validation policy.
func WithPolicy(p schema.Policy) Option { return func(f *MarkerForm) { f.policy = p } }

// NewAdd returns an open, empty form that creates a marker on submit.
func NewAdd(saver Saver, opts ...Option) *MarkerForm {
	return newForm(saver, nil, opts)
}

// NewEdit returns an open form pre-filled from m that updates it on submit.
func NewEdit(saver Saver, m *domain.Marker, opts ...Option) *MarkerForm {
	return newForm(saver, m, opts)
}

func newForm(saver Saver, m *domain.Marker, opts []Option) *MarkerForm {
	f := &MarkerForm{saver: saver, emails: NewEmailList(nil), open: true}
	for _, o := range opts {
		o(f)
	}
	f.resetLocked(m)
	return f
}

// resetLocked re-initialises the draft from m, or empties it when m is nil.
// Callers hold f.mu or own f exclusively.
func (f *MarkerForm) resetLocked(m *domain.Marker) {
	f.initialRef = m
	f.errs = nil
	if m == nil {
		f.initial = nil
		f.name = ""
		f.coordinate = domain.Coordinate{}
		f.emails.Reset(nil)
		return
	}
	snap := *m
	f.initial = &snap
	f.name = snap.Name
	f.coordinate = snap.Coordinate
	f.emails.Reset(snap.SubscribedEmails)
}

// SetInitialData switches the form to m. The draft is re-initialised only
// when the marker identity changes (a different pointer or markerId), so
// re-rendering with the same marker keeps in-progress edits.
func (f *MarkerForm) SetInitialData(m *domain.Marker) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m == f.initialRef && (m == nil || m.MarkerID == f.initial.MarkerID) {
		return
	}
	f.resetLocked(m)
}

// Mode reports whether the form adds or edits.
func (f *MarkerForm) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initial == nil {
		return ModeAdd
	}
	return ModeEdit
}

// IsOpen reports whether the form is showing.
func (f *MarkerForm) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Open shows the form again after a submit or cancel.
func (f *MarkerForm) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
}

// SetName sets the draft name.
func (f *MarkerForm) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = name
}

// SelectLocation sets the draft coordinate.
func (f *MarkerForm) SelectLocation(c domain.Coordinate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coordinate = c
}

// Selector returns a coordinate selector centred on the draft location whose
// clicks are written into the draft.
func (f *MarkerForm) Selector() *mapselect.Selector {
	f.mu.Lock()
	c := f.coordinate
	f.mu.Unlock()

	var initial *domain.Coordinate
	if !c.IsZero() {
		initial = &c
	}
	return mapselect.New(initial, f.SelectLocation)
}

// Emails is the subscriber list being edited.
func (f *MarkerForm) Emails() *EmailList { return f.emails }

// Draft returns a copy of the current draft.
func (f *MarkerForm) Draft() domain.MarkerDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draftLocked()
}

func (f *MarkerForm) draftLocked() domain.MarkerDraft {
	return domain.MarkerDraft{
		Name:             f.name,
		Coordinate:       f.coordinate,
		SubscribedEmails: f.emails.Items(),
	}
}

// Errors returns the validation failures of the last submit, or nil.
func (f *MarkerForm) Errors() *domain.ValidationError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs
}

// FieldError returns the message recorded for field by the last submit.
func (f *MarkerForm) FieldError(field string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		return ""
	}
	return f.errs.Field(field)
}

// Submit validates the draft and sends it to the store: Create in add mode,
// Update with the minimal patch in edit mode.
//
// Invalid drafts are never sent; the per-field errors are kept for Errors and
// returned as a *domain.ValidationError. On store failure the form stays open
// with every field intact. On success it closes and resets: to empty in add
// mode, to the saved marker in edit mode. When the store replies to an edit
// without the marker, the saved marker is the initial one with the patch applied.
func (f *MarkerForm) Submit(ctx context.Context) (domain.Marker, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return domain.Marker{}, fmt.Errorf("form.MarkerForm.Submit: %w", ErrSubmitting)
	}
	clean, err := schema.Validate(f.draftLocked(), f.policy)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			f.errs = ve
		}
		f.mu.Unlock()
		return domain.Marker{}, err
	}
	f.errs = nil
	f.submitting = true
	var initial *domain.Marker
	if f.initial != nil {
		snap := *f.initial
		initial = &snap
	}
	f.mu.Unlock()

	var saved domain.Marker
	if initial == nil {
		saved, err = f.saver.Create(ctx, clean)
	} else {
		patch := domain.Diff(*initial, clean)
		saved, err = f.saver.Update(ctx, initial.MarkerID, patch)
		if err == nil && saved.MarkerID == "" {
			// The store accepted the patch without echoing the marker.
			saved = patch.Apply(*initial)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		return domain.Marker{}, fmt.Errorf("form.MarkerForm.Submit: %w", err)
	}

	f.open = false
	if initial == nil {
		f.resetLocked(nil)
	} else {
		f.resetLocked(&saved)
	}
	return saved, nil
}

// Cancel discards the draft and closes the form.
func (f *MarkerForm) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.initialRef
	if f.initial == nil {
		f.resetLocked(nil)
	} else {
		snap := *f.initial
		f.resetLocked(&snap)
	}
	f.initialRef = ref
	f.open = false
}
