package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/statemachine"
)

type (
	docState string
	docEvent string
)

const (
	draft     docState = "draft"
	review    docState = "review"
	published docState = "published"
	archived  docState = "archived"

	submit  docEvent = "submit"
	approve docEvent = "approve"
	reject  docEvent = "reject"
	archive docEvent = "archive"
)

func newDocMachine(t *testing.T) *statemachine.Machine[docState, docEvent] {
	t.Helper()

	onlyIfReviewed := func(_ docState, _ docEvent, data any) bool {
		reviewed, _ := data.(bool)
		return reviewed
	}

	m, err := statemachine.New(
		statemachine.WithTerminal[docState, docEvent](archived),
		statemachine.WithTransition(review, submit, []docState{draft}),
		statemachine.WithTransition(published, approve, []docState{review}, onlyIfReviewed),
		statemachine.WithTransition(draft, reject, []docState{review}),
		statemachine.WithTransition(archived, archive, []docState{draft, review, published}),
	)
	require.NoError(t, err)
	return m
}

func TestMachine_Next(t *testing.T) {
	t.Parallel()

	m := newDocMachine(t)

	tests := []struct {
		name  string
		from  docState
		event docEvent
		data  any
		want  docState
	}{
		{"submit draft", draft, submit, nil, review},
		{"approve reviewed", review, approve, true, published},
		{"reject review", review, reject, nil, draft},
		{"archive from any source", published, archive, nil, archived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := m.Next(tt.from, tt.event, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMachine_Errors(t *testing.T) {
	t.Parallel()

	m := newDocMachine(t)

	t.Run("unknown pair", func(t *testing.T) {
		t.Parallel()

		got, err := m.Next(draft, approve, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Equal(t, draft, got)
	})

	t.Run("guard rejects", func(t *testing.T) {
		t.Parallel()

		got, err := m.Next(review, approve, false)
		require.Error(t, err)
		assert.True(t, statemachine.IsTransitionRejectedError(err))
		assert.Equal(t, review, got)
	})

	t.Run("terminal absorbs everything", func(t *testing.T) {
		t.Parallel()

		assert.True(t, m.IsTerminal(archived))
		for _, e := range []docEvent{submit, approve, reject, archive} {
			_, err := m.Next(archived, e, true)
			assert.True(t, statemachine.IsNoTransitionAvailableError(err), "event %s", e)
		}
		assert.Empty(t, m.Events(archived))
	})

	t.Run("empty event", func(t *testing.T) {
		t.Parallel()

		_, err := m.Next(draft, "", nil)
		assert.ErrorIs(t, err, statemachine.ErrInvalidEvent)
	})
}

func TestMachine_Can(t *testing.T) {
	t.Parallel()

	m := newDocMachine(t)
	assert.True(t, m.Can(draft, submit, nil))
	assert.False(t, m.Can(draft, approve, nil))
	assert.ElementsMatch(t, []docEvent{approve, reject, archive}, m.Events(review))
}

func TestNew_InvalidTable(t *testing.T) {
	t.Parallel()

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()

		_, err := statemachine.New(statemachine.WithTransition[docState, docEvent](review, submit, nil))
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("transition out of terminal", func(t *testing.T) {
		t.Parallel()

		_, err := statemachine.New(
			statemachine.WithTerminal[docState, docEvent](archived),
			statemachine.WithTransition(draft, reject, []docState{archived}),
		)
		assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	})

	t.Run("must new panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			statemachine.MustNew(statemachine.WithTransition[docState, docEvent]("", submit, []docState{draft}))
		})
	})
}
