package reportcache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravox/pkg/models"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	pct := 50.0
	want := &Result{
		Key:        Key{ReportID: "r1", Section: "group_informed_consensus", Model: "openai"},
		CreatedAt:  time.Now().UTC(),
		ReportData: json.RawMessage(`{"title": "Where groups agree"}`),
		Model:      "gpt-4o-mini",
		Coverage: &models.CoverageMetrics{
			TotalComments:       40,
			FilteredComments:    10,
			CitedComments:       5,
			OmittedComments:     5,
			CoveragePercentage:  &pct,
			FabricatedCitations: []int{99},
		},
	}
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, want.Key)
	require.NoError(t, err)

	assert.Equal(t, want.Key, got.Key)
	assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
	assert.JSONEq(t, string(want.ReportData), string(got.ReportData))
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Empty(t, got.Errors)
	require.NotNil(t, got.Coverage)
	assert.Equal(t, 5, got.Coverage.CitedComments)
	assert.Equal(t, []int{99}, got.Coverage.FabricatedCitations)
	require.NotNil(t, got.Coverage.CoveragePercentage)
	assert.Equal(t, 50.0, *got.Coverage.CoveragePercentage)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newSQLiteTestStore(t)

	_, err := store.Get(context.Background(), Key{ReportID: "nope", Section: "groups", Model: "openai"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_PutReplacesExisting(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()
	key := Key{ReportID: "r1", Section: "topics", Model: "openai"}

	first := &Result{Key: key, CreatedAt: time.Now().Add(-2 * time.Hour).UTC(), ReportData: json.RawMessage(`{"v": 1}`), Model: "gpt-4o-mini"}
	second := &Result{Key: key, CreatedAt: time.Now().UTC(), ReportData: json.RawMessage(`{"v": 2}`), Model: "gpt-4o-mini"}

	require.NoError(t, store.Put(ctx, first))
	require.NoError(t, store.Put(ctx, second))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v": 2}`, string(got.ReportData))
	assert.True(t, got.Fresh(time.Hour))
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()
	key := Key{ReportID: "r1", Section: "uncertainty", Model: "openai"}

	require.NoError(t, store.Put(ctx, &Result{Key: key, CreatedAt: time.Now(), Model: "gpt-4o-mini"}))
	require.NoError(t, store.Delete(ctx, key))

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, key))
}

func TestSQLiteStore_DelimiterKeysStayDistinct(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	a := &Result{Key: Key{ReportID: "a#b", Section: "c", Model: "m"}, CreatedAt: time.Now(), ReportData: json.RawMessage(`{"which": "a"}`), Model: "m"}
	b := &Result{Key: Key{ReportID: "a", Section: "b#c", Model: "m"}, CreatedAt: time.Now(), ReportData: json.RawMessage(`{"which": "b"}`), Model: "m"}

	require.NoError(t, store.Put(ctx, a))
	require.NoError(t, store.Put(ctx, b))

	gotA, err := store.Get(ctx, a.Key)
	require.NoError(t, err)
	gotB, err := store.Get(ctx, b.Key)
	require.NoError(t, err)

	assert.JSONEq(t, `{"which": "a"}`, string(gotA.ReportData))
	assert.JSONEq(t, `{"which": "b"}`, string(gotB.ReportData))
}

func TestSQLiteStore_PersistsErrorTagWhenAsked(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()
	key := Key{ReportID: "r1", Section: "groups", Model: "openai"}

	require.NoError(t, store.Put(ctx, &Result{
		Key:       key,
		CreatedAt: time.Now(),
		Model:     "gpt-4o-mini",
		Errors:    models.TagNoContentAfterFilter,
	}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.TagNoContentAfterFilter, got.Errors)
	assert.Nil(t, got.ReportData)
}
