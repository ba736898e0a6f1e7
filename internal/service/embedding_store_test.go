package service

import (
	"context"
	"testing"

	"blogforge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIsIdempotent(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("some topic", []float64{1, 0, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	vec, err := store.Vector(ctx, 1, "key", "Some Topic")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)
	assert.Equal(t, 1, embedder.calls)

	// Second call is served from the persisted record.
	vec, err = store.Vector(ctx, 1, "key", "# Some  Topic")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)
	assert.Equal(t, 1, embedder.calls, "equivalent text must not re-embed")
}

func TestNearestRanksByScore(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("alpha", []float64{1, 0, 0})
	embedder.set("beta", []float64{0, 1, 0})
	embedder.set("gamma", []float64{0.9, 0.1, 0})
	embedder.set("probe", []float64{1, 0, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	for _, text := range []string{"alpha", "beta", "gamma"} {
		_, err := store.Vector(ctx, 1, "key", text)
		require.NoError(t, err)
	}

	matches, err := store.Nearest(ctx, 1, "key", "probe", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "alpha", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "gamma", matches[1].Text)
}

func TestNearestExcludesSelf(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("alpha", []float64{1, 0, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	_, err := store.Vector(ctx, 1, "key", "alpha")
	require.NoError(t, err)

	matches, err := store.Nearest(ctx, 1, "key", "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, matches, "a text must not match itself")
}

func TestNearestDoesNotPersistProbes(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("alpha", []float64{1, 0, 0})
	embedder.set("ghost topic", []float64{0, 1, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	_, err := store.Vector(ctx, 1, "key", "alpha")
	require.NoError(t, err)

	_, err = store.Nearest(ctx, 1, "key", "Ghost Topic", 3)
	require.NoError(t, err)

	recs, err := repo.ListEmbeddings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1, "a similarity lookup must not write a record")
	assert.Equal(t, "alpha", recs[0].NormalizedText)

	// The looked-up text is still free to become a topic later.
	dup, _, err := store.IsDuplicate(ctx, 1, "key", "Ghost Topic", 0.85)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicateShortCircuitsOnExactMatch(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Topic{
		UserID: 1, Text: "Kubernetes Basics", NormalizedText: "kubernetes basics",
	}))

	dup, match, err := store.IsDuplicate(ctx, 1, "key", "## Kubernetes   Basics", 0.85)
	require.NoError(t, err)
	assert.True(t, dup)
	require.NotNil(t, match)
	assert.Equal(t, float64(1), match.Score)
	assert.Equal(t, 0, embedder.calls, "exact matches must not call the embedding API")
}

func TestIsDuplicateByThreshold(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("kubernetes basics", []float64{1, 0, 0})
	embedder.set("kubernetes fundamentals", []float64{0.99, 0.1, 0})
	embedder.set("cooking pasta", []float64{0, 1, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	_, err := store.Vector(ctx, 1, "key", "Kubernetes Basics")
	require.NoError(t, err)

	dup, match, err := store.IsDuplicate(ctx, 1, "key", "Kubernetes Fundamentals", 0.85)
	require.NoError(t, err)
	assert.True(t, dup)
	require.NotNil(t, match)
	assert.Equal(t, "kubernetes basics", match.Text)
	assert.GreaterOrEqual(t, match.Score, 0.85)

	dup, _, err = store.IsDuplicate(ctx, 1, "key", "Cooking Pasta", 0.85)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRebuildRecomputesFromTopics(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	embedder.set("alpha", []float64{1, 0, 0})
	embedder.set("beta", []float64{0, 1, 0})
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Topic{UserID: 1, Text: "Alpha", NormalizedText: "alpha"}))
	require.NoError(t, repo.Create(ctx, &models.Topic{UserID: 1, Text: "Beta", NormalizedText: "beta", Used: true}))

	count, err := store.Rebuild(ctx, 1, "key")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	recs, err := repo.ListEmbeddings(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestCleanupDropsOrphanRecords(t *testing.T) {
	repo := newMemTopicRepo()
	embedder := newStubEmbedder()
	store := NewEmbeddingStore(repo, embedder)

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Topic{UserID: 1, Text: "Kept", NormalizedText: "kept"}))
	require.NoError(t, repo.SaveEmbedding(ctx, &models.EmbeddingRecord{UserID: 1, NormalizedText: "kept", Vector: "[1]"}))
	require.NoError(t, repo.SaveEmbedding(ctx, &models.EmbeddingRecord{UserID: 1, NormalizedText: "orphan", Vector: "[1]"}))

	removed, err := store.Cleanup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	recs, err := repo.ListEmbeddings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].NormalizedText)
}
