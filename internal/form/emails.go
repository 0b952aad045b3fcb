package form

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/schema"
)

// ErrIndexOutOfRange is returned by EmailList.RemoveAt for a bad position.
var ErrIndexOutOfRange = errors.New("index out of range")

// EmailList is the ordered, duplicate-free list of subscriber emails being
// edited. Changes stay local until the form is submitted. Duplicates are
// matched exactly, so addresses differing only in case are distinct.
type EmailList struct {
	mu    sync.Mutex
	items []string
}

// NewEmailList returns a list holding the distinct values of initial, in order.
func NewEmailList(initial []string) *EmailList {
	l := &EmailList{}
	l.Reset(initial)
	return l
}

// Add appends email unless it is already present. The address is trimmed and
// must be email-shaped; otherwise a *domain.ValidationError is returned and
// the list is unchanged. added reports whether the list grew.
func (l *EmailList) Add(email string) (added bool, err error) {
	email = strings.TrimSpace(email)
	if !schema.ValidEmail(email) {
		return false, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "subscribedEmails", Message: schema.MsgInvalidEmail},
		}}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.Contains(l.items, email) {
		return false, nil
	}
	l.items = append(l.items, email)
	return true, nil
}

// RemoveAt deletes the email at position i.
func (l *EmailList) RemoveAt(i int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("form.EmailList.RemoveAt %d of %d: %w", i, len(l.items), ErrIndexOutOfRange)
	}
	l.items = slices.Delete(l.items, i, i+1)
	return nil
}

// Items returns a copy of the list. It is never nil.
func (l *EmailList) Items() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.items...)
}

// Len is the number of emails.
func (l *EmailList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Reset replaces the contents with the distinct values of items.
func (l *EmailList) Reset(items []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = l.items[:0:0]
	for _, e := range items {
		if !slices.Contains(l.items, e) {
			l.items = append(l.items, e)
		}
	}
}
