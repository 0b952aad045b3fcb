package form_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/internal/form"
	"github.com/pkordes/change-observer/internal/schema"
)

func TestEmailList_AddAppendsInOrder(t *testing.T) {
	l := form.NewEmailList(nil)

	for _, e := range []string{"a@x.com", " b@y.org ", "c@z.net"} {
		added, err := l.Add(e)
		require.NoError(t, err)
		assert.True(t, added)
	}

	assert.Equal(t, []string{"a@x.com", "b@y.org", "c@z.net"}, l.Items())
}

func TestEmailList_DuplicateIsNoOp(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com"})

	added, err := l.Add("a@x.com")

	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, l.Len())
}

func TestEmailList_DuplicatesAreCaseSensitive(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com"})

	added, err := l.Add("A@x.com")

	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, l.Len())
}

func TestEmailList_RejectsMalformed(t *testing.T) {
	l := form.NewEmailList(nil)

	for _, e := range []string{"", "   ", "not-an-email", "a@"} {
		added, err := l.Add(e)
		require.ErrorIs(t, err, domain.ErrValidation, e)
		assert.False(t, added)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, schema.MsgInvalidEmail, ve.Field("subscribedEmails"))
	}
	assert.Empty(t, l.Items())
}

func TestEmailList_RemoveAt(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com", "b@y.org", "c@z.net"})

	require.NoError(t, l.RemoveAt(1))

	assert.Equal(t, []string{"a@x.com", "c@z.net"}, l.Items())
}

func TestEmailList_RemoveAtOutOfRange(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com"})

	for _, i := range []int{-1, 1, 5} {
		assert.ErrorIs(t, l.RemoveAt(i), form.ErrIndexOutOfRange)
	}
	assert.Equal(t, 1, l.Len())
}

func TestEmailList_ItemsIsACopy(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com"})

	items := l.Items()
	items[0] = "changed@x.com"

	assert.Equal(t, []string{"a@x.com"}, l.Items())
	assert.NotNil(t, form.NewEmailList(nil).Items())
}

func TestEmailList_ResetDropsDuplicates(t *testing.T) {
	l := form.NewEmailList([]string{"a@x.com"})

	l.Reset([]string{"b@y.org", "b@y.org", "c@z.net"})

	assert.Equal(t, []string{"b@y.org", "c@z.net"}, l.Items())
}
