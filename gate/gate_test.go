package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtdata/results-ingest/model"
)

type fakeStore struct {
	rows       []model.Match
	countErr   error
	replaceErr error
	replaced   int
}

func (f *fakeStore) CountMatches(ctx context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.rows), nil
}

func (f *fakeStore) ReplaceMatches(ctx context.Context, matches []model.Match) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.rows = append([]model.Match(nil), matches...)
	f.replaced++
	return nil
}

func candidates(n int) []model.Match {
	out := make([]model.Match, n)
	for i := range out {
		out[i].Team1Wins = i
	}
	return out
}

func TestReconcile_ShrinkBlocked(t *testing.T) {
	store := &fakeStore{rows: candidates(100)}
	g := New(store, nil)

	replaced, prior, err := g.Reconcile(context.Background(), candidates(40), false)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, 100, prior)
	assert.Equal(t, 0, store.replaced, "store must be untouched when the guard holds")
	assert.Len(t, store.rows, 100)
}

func TestReconcile_ForceOverridesShrinkGuard(t *testing.T) {
	store := &fakeStore{rows: candidates(100)}
	g := New(store, nil)

	replaced, prior, err := g.Reconcile(context.Background(), candidates(40), true)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 100, prior)
	assert.Len(t, store.rows, 40)
}

func TestReconcile_GrowingAndEqualSetsPass(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		candidates int
	}{
		{"growing", 10, 25},
		{"equal", 10, 10},
		{"empty store", 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{rows: candidates(tt.current)}
			g := New(store, nil)

			replaced, prior, err := g.Reconcile(context.Background(), candidates(tt.candidates), false)
			require.NoError(t, err)
			assert.True(t, replaced)
			assert.Equal(t, tt.current, prior)
			assert.Len(t, store.rows, tt.candidates)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := &fakeStore{rows: candidates(5)}
	g := New(store, nil)

	set := candidates(8)
	replaced, _, err := g.Reconcile(context.Background(), set, false)
	require.NoError(t, err)
	require.True(t, replaced)
	first := append([]model.Match(nil), store.rows...)

	replaced, _, err = g.Reconcile(context.Background(), set, true)
	require.NoError(t, err)
	require.True(t, replaced)
	assert.Equal(t, first, store.rows, "reconciling the same set twice must land in the same state")
}

func TestReconcile_StoreErrors(t *testing.T) {
	countErr := errors.New("count boom")
	replaceErr := errors.New("replace boom")

	t.Run("count", func(t *testing.T) {
		store := &fakeStore{countErr: countErr}
		g := New(store, nil)

		replaced, _, err := g.Reconcile(context.Background(), candidates(3), false)
		assert.ErrorIs(t, err, countErr)
		assert.False(t, replaced)
	})

	t.Run("replace", func(t *testing.T) {
		store := &fakeStore{rows: candidates(1), replaceErr: replaceErr}
		g := New(store, nil)

		replaced, prior, err := g.Reconcile(context.Background(), candidates(3), false)
		assert.ErrorIs(t, err, replaceErr)
		assert.False(t, replaced)
		assert.Equal(t, 1, prior)
	})
}
