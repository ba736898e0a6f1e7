package service

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"blogforge/internal/cache"
	"blogforge/internal/embedding"
	"blogforge/internal/models"
	"blogforge/internal/repository"
)

var (
	headingMarkers = regexp.MustCompile(`^#+\s+`)
	titlePrefix    = regexp.MustCompile(`(?i)^title:\s*`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// NormalizeTitle canonicalizes a title for comparison: markdown heading
// markers and a leading "Title:" prefix are stripped, whitespace collapsed,
// and the result lowercased.
func NormalizeTitle(title string) string {
	title = headingMarkers.ReplaceAllString(title, "")
	title = titlePrefix.ReplaceAllString(title, "")
	title = whitespaceRun.ReplaceAllString(title, " ")
	return strings.ToLower(strings.TrimSpace(title))
}

// Match pairs a stored text with its similarity to a probe.
type Match struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// EmbeddingStore computes, caches, and compares topic embeddings. Vectors are
// cached in redis and persisted as EmbeddingRecord rows keyed by
// (user, normalized text), so recomputation is idempotent. Records exist only
// for accepted topics and draft titles, never for similarity probes.
type EmbeddingStore struct {
	topicRepo repository.TopicRepository
	embedder  embedding.Embedder
}

func NewEmbeddingStore(topicRepo repository.TopicRepository, embedder embedding.Embedder) *EmbeddingStore {
	return &EmbeddingStore{topicRepo: topicRepo, embedder: embedder}
}

// Vector returns the embedding for text and persists it as a record. Records
// feed the duplicate gate, so only accepted content goes through here;
// lookups that must not leave a trace use Nearest or IsDuplicate.
func (s *EmbeddingStore) Vector(ctx context.Context, userID uint, apiKey, text string) ([]float64, error) {
	normalized := NormalizeTitle(text)
	if normalized == "" {
		return nil, models.NewValidationError("text is empty after normalization")
	}

	vec, err := s.lookup(ctx, userID, apiKey, normalized)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(vec)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := s.topicRepo.SaveEmbedding(ctx, &models.EmbeddingRecord{
		UserID:         userID,
		NormalizedText: normalized,
		Vector:         string(encoded),
	}); err != nil {
		return nil, err
	}
	return vec, nil
}

// lookup returns the embedding for normalized text without writing a record.
// Vectors are cached in redis so repeated lookups of the same text stay cheap.
func (s *EmbeddingStore) lookup(ctx context.Context, userID uint, apiKey, normalized string) ([]float64, error) {
	key := cache.EmbeddingKey(userID, normalized)
	var vec []float64
	if found, err := cache.GetJSON(ctx, key, &vec); err == nil && found {
		return vec, nil
	}

	rec, err := s.topicRepo.GetEmbedding(ctx, userID, normalized)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if err := json.Unmarshal([]byte(rec.Vector), &vec); err == nil && len(vec) > 0 {
			_ = cache.SetJSON(ctx, key, vec, cache.EmbeddingTTL)
			return vec, nil
		}
	}

	vec, err = s.embedder.Embed(ctx, apiKey, normalized)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, key, vec, cache.EmbeddingTTL)
	return vec, nil
}

// Nearest returns up to topK stored texts ranked by cosine similarity to
// text, highest first. Ties break toward the record stored earliest.
func (s *EmbeddingStore) Nearest(ctx context.Context, userID uint, apiKey, text string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 1
	}
	normalized := NormalizeTitle(text)
	if normalized == "" {
		return nil, models.NewValidationError("text is empty after normalization")
	}

	// The probe is never persisted: comparing against stored texts must not
	// make the probe itself count as stored.
	probe, err := s.lookup(ctx, userID, apiKey, normalized)
	if err != nil {
		return nil, err
	}

	recs, err := s.topicRepo.ListEmbeddings(ctx, userID)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(recs))
	order := make(map[string]int, len(recs))
	for i, rec := range recs {
		if rec.NormalizedText == normalized {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(rec.Vector), &vec); err != nil {
			continue
		}
		order[rec.NormalizedText] = i
		matches = append(matches, Match{
			Text:  rec.NormalizedText,
			Score: embedding.CosineSimilarity(probe, vec),
		})
	}

	// ListEmbeddings orders by CreatedAt, so index order is insertion order.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return order[matches[i].Text] < order[matches[j].Text]
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// IsDuplicate reports whether text is a near-duplicate of any stored text.
// An exact normalized match short-circuits without calling the embedding API.
func (s *EmbeddingStore) IsDuplicate(ctx context.Context, userID uint, apiKey, text string, threshold float64) (bool, *Match, error) {
	normalized := NormalizeTitle(text)
	if normalized == "" {
		return false, nil, models.NewValidationError("text is empty after normalization")
	}

	rec, err := s.topicRepo.GetEmbedding(ctx, userID, normalized)
	if err != nil {
		return false, nil, err
	}
	if rec != nil {
		return true, &Match{Text: normalized, Score: 1}, nil
	}
	if topic, err := s.topicRepo.GetByNormalizedText(ctx, userID, normalized); err != nil {
		return false, nil, err
	} else if topic != nil {
		return true, &Match{Text: normalized, Score: 1}, nil
	}

	matches, err := s.Nearest(ctx, userID, apiKey, text, 1)
	if err != nil {
		return false, nil, err
	}
	if len(matches) > 0 && matches[0].Score >= threshold {
		return true, &matches[0], nil
	}
	return false, nil, nil
}

// Rebuild recomputes embedding records for every topic the user has.
// Returns the number of records written.
func (s *EmbeddingStore) Rebuild(ctx context.Context, userID uint, apiKey string) (int, error) {
	topics, err := s.topicRepo.List(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	if _, err := s.topicRepo.DeleteEmbeddings(ctx, userID); err != nil {
		return 0, err
	}

	count := 0
	for _, topic := range topics {
		cache.Invalidate(ctx, cache.EmbeddingKey(userID, topic.NormalizedText))
		if _, err := s.Vector(ctx, userID, apiKey, topic.Text); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Cleanup removes embedding records whose topic no longer exists.
// Returns the number of records removed.
func (s *EmbeddingStore) Cleanup(ctx context.Context, userID uint) (int, error) {
	topics, err := s.topicRepo.List(ctx, userID, true)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		known[topic.NormalizedText] = struct{}{}
	}

	recs, err := s.topicRepo.ListEmbeddings(ctx, userID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range recs {
		if _, ok := known[rec.NormalizedText]; ok {
			continue
		}
		if err := s.deleteRecord(ctx, userID, rec.NormalizedText); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *EmbeddingStore) deleteRecord(ctx context.Context, userID uint, normalized string) error {
	cache.Invalidate(ctx, cache.EmbeddingKey(userID, normalized))
	return s.topicRepo.DeleteEmbedding(ctx, userID, normalized)
}
