package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
	"blogforge/internal/observability"
	"blogforge/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// PipelineConfig carries the tunables of the generation pipeline.
type PipelineConfig struct {
	// SimilarityThreshold is the cosine score at or above which a suggested
	// topic counts as a duplicate.
	SimilarityThreshold float64
	// RetryBudget bounds topic suggestion attempts before giving up.
	RetryBudget int
	// TopicPool is an optional fixed list of topics consulted before asking
	// the model for a suggestion.
	TopicPool []string
	// DataDir is the root of per-user data directories.
	DataDir string
}

// Pipeline orchestrates the post lifecycle:
// suggested topic -> draft -> previewed -> published | sync-failed.
type Pipeline struct {
	topicRepo repository.TopicRepository
	postRepo  repository.PostRepository
	users     *UserService
	store     *EmbeddingStore
	generator *Generator
	publisher *Publisher
	cfg       PipelineConfig

	locks sync.Map // userID -> *sync.Mutex
}

func NewPipeline(
	topicRepo repository.TopicRepository,
	postRepo repository.PostRepository,
	users *UserService,
	store *EmbeddingStore,
	generator *Generator,
	publisher *Publisher,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.RetryBudget < 1 {
		cfg.RetryBudget = 5
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 0.85
	}
	return &Pipeline{
		topicRepo: topicRepo,
		postRepo:  postRepo,
		users:     users,
		store:     store,
		generator: generator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// lockFor serializes pipeline writes per user within this process.
func (p *Pipeline) lockFor(userID uint) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (p *Pipeline) apiKey(ctx context.Context, userID uint) (string, error) {
	creds, err := p.users.Credentials(ctx, userID)
	if err != nil {
		return "", err
	}
	if creds.OpenAIKey == "" {
		return "", models.NewValidationError("No OpenAI API key set for this user")
	}
	return creds.OpenAIKey, nil
}

// SuggestTopic produces a topic that passes the duplicate gate, persists it
// unused, and returns it. Exhausting the retry budget yields
// NoUniqueTopicError.
func (p *Pipeline) SuggestTopic(ctx context.Context, userID uint, postType string) (*models.Topic, error) {
	span, ctx := observability.NewSpan(ctx, "pipeline.SuggestTopic")
	span.AddAttributes(attribute.String("post.type", postType))
	defer span.End()

	topic, err := p.suggestTopic(ctx, userID, postType)
	span.SetError(err)
	return topic, err
}

func (p *Pipeline) suggestTopic(ctx context.Context, userID uint, postType string) (*models.Topic, error) {
	apiKey, err := p.apiKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := p.existingTitles(ctx, userID)
	if err != nil {
		return nil, err
	}

	pool := p.uncoveredPool(existing)

	for attempt := 0; attempt < p.cfg.RetryBudget; attempt++ {
		var candidate string
		if len(pool) > 0 {
			candidate, pool = pool[0], pool[1:]
		} else {
			candidate, err = p.generator.SuggestTopic(ctx, apiKey, postType, existing)
			if err != nil {
				return nil, err
			}
		}

		dup, match, err := p.store.IsDuplicate(ctx, userID, apiKey, candidate, p.cfg.SimilarityThreshold)
		if err != nil {
			return nil, err
		}
		if dup {
			middleware.DuplicateTopicsRejected.Inc()
			middleware.Logger.InfoContext(ctx, "rejected duplicate topic suggestion",
				"topic", candidate, "similar_to", match.Text, "score", match.Score)
			existing = append(existing, candidate)
			continue
		}

		topic := &models.Topic{
			UserID:         userID,
			Text:           candidate,
			NormalizedText: NormalizeTitle(candidate),
		}
		if err := p.topicRepo.Create(ctx, topic); err != nil {
			return nil, err
		}

		// Persist the embedding now that the topic is accepted, so later
		// suggestions are gated against it.
		if _, err := p.store.Vector(ctx, userID, apiKey, candidate); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to store topic embedding",
				"topic_id", topic.ID, "error", err)
		}
		return topic, nil
	}

	return nil, models.NewNoUniqueTopicError(p.cfg.RetryBudget)
}

// CheckSimilarity returns the nearest stored texts for an arbitrary probe.
func (p *Pipeline) CheckSimilarity(ctx context.Context, userID uint, text string, topK int) ([]Match, error) {
	apiKey, err := p.apiKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.store.Nearest(ctx, userID, apiKey, text, topK)
}

// GenerateDraft consumes the topic and writes a draft post about it. The
// used flag is taken by a conditional update before generation and reverted
// if generation fails, so a failed topic can be retried.
func (p *Pipeline) GenerateDraft(ctx context.Context, userID, topicID uint, postType string) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "pipeline.GenerateDraft")
	span.AddAttributes(attribute.Int("topic.id", int(topicID)))
	defer span.End()

	post, err := p.generateDraft(ctx, userID, topicID, postType)
	span.SetError(err)
	return post, err
}

func (p *Pipeline) generateDraft(ctx context.Context, userID, topicID uint, postType string) (*models.Post, error) {
	if postType == "" {
		postType = models.PostTypeGeneral
	}
	if !models.ValidPostType(postType) {
		return nil, models.NewValidationError("Invalid post type")
	}

	apiKey, err := p.apiKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	mu := p.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	topic, err := p.topicRepo.GetByID(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}

	if err := p.topicRepo.Consume(ctx, userID, topicID); err != nil {
		return nil, err
	}

	settings, err := p.users.GetSettings(ctx, userID)
	if err != nil {
		p.revertTopic(ctx, userID, topicID)
		return nil, err
	}
	overrides := PromptOverrides{
		ToolReview: settings.ToolPrompt,
		General:    settings.GeneralPrompt,
		Guide:      settings.GuidePrompt,
	}

	draft, err := p.generator.GenerateDraft(ctx, apiKey, postType, topic.Text, overrides)
	if err != nil {
		p.revertTopic(ctx, userID, topicID)
		return nil, err
	}

	tags, err := json.Marshal(draft.Tags)
	if err != nil {
		p.revertTopic(ctx, userID, topicID)
		return nil, models.NewInternalError(err)
	}

	post := &models.Post{
		UserID:  userID,
		TopicID: &topicID,
		Type:    postType,
		Title:   draft.Title,
		Content: draft.Content,
		Tags:    string(tags),
		Status:  models.PostStatusDraft,
	}
	if err := p.postRepo.Create(ctx, post); err != nil {
		p.revertTopic(ctx, userID, topicID)
		return nil, err
	}

	// Remember the draft title so later suggestions are gated against it.
	if _, err := p.store.Vector(ctx, userID, apiKey, draft.Title); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to store draft title embedding",
			"post_id", post.ID, "error", err)
	}

	middleware.PipelineTransitions.WithLabelValues(models.PostStatusDraft).Inc()
	return post, nil
}

func (p *Pipeline) revertTopic(ctx context.Context, userID, topicID uint) {
	if err := p.topicRepo.Release(ctx, userID, topicID); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to release topic after draft failure",
			"topic_id", topicID, "error", err)
	}
}

// Preview marks a draft as previewed and returns it. Already-previewed posts
// pass through unchanged.
func (p *Pipeline) Preview(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := p.postRepo.GetByID(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusDraft {
		moved, err := p.postRepo.UpdateStatus(ctx, userID, postID, models.PostStatusDraft, models.PostStatusPreviewed)
		if err != nil {
			return nil, err
		}
		if moved {
			post.Status = models.PostStatusPreviewed
			middleware.PipelineTransitions.WithLabelValues(models.PostStatusPreviewed).Inc()
		}
	}
	return post, nil
}

// Publish pushes a post to the blog host. A post that already has a remote
// ID is returned as-is without touching the remote again. A remote rejection
// moves the post to sync-failed and surfaces the PublishError.
func (p *Pipeline) Publish(ctx context.Context, userID, postID uint) (*models.Post, error) {
	span, ctx := observability.NewSpan(ctx, "pipeline.Publish")
	span.AddAttributes(attribute.Int("post.id", int(postID)))
	defer span.End()

	post, err := p.publish(ctx, userID, postID)
	span.SetError(err)
	return post, err
}

func (p *Pipeline) publish(ctx context.Context, userID, postID uint) (*models.Post, error) {
	mu := p.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	post, err := p.postRepo.GetByID(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.RemoteID != nil {
		middleware.Logger.InfoContext(ctx, "post already published, skipping",
			"post_id", postID, "remote_id", *post.RemoteID)
		return post, nil
	}

	creds, err := p.users.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds.WordPress.BaseURL == "" {
		return nil, models.NewValidationError("No blog host configured for this user")
	}

	wp := p.publisher.Client(creds.WordPress)

	var tags []string
	if post.Tags != "" {
		_ = json.Unmarshal([]byte(post.Tags), &tags)
	}
	if len(tags) == 0 && creds.OpenAIKey != "" {
		tags = p.generator.GenerateTags(ctx, creds.OpenAIKey, post.Content)
	}

	category := post.Category
	if category == "" && creds.OpenAIKey != "" {
		category = p.generator.Categorize(ctx, creds.OpenAIKey, post.Title, post.Content)
	}
	if category == "" {
		category = "Uncategorized"
	}

	tagIDs := wp.EnsureTags(ctx, tags)

	remote, err := wp.CreatePost(ctx, post.Title, post.Content, tagIDs)
	if err != nil {
		if models.IsCode(err, models.CodePublish) {
			if _, stErr := p.postRepo.UpdateStatus(ctx, userID, postID, post.Status, models.PostStatusSyncFailed); stErr != nil {
				middleware.Logger.ErrorContext(ctx, "failed to mark post sync-failed",
					"post_id", postID, "error", stErr)
			} else {
				middleware.PipelineTransitions.WithLabelValues(models.PostStatusSyncFailed).Inc()
			}
		}
		return nil, err
	}

	remoteID := strconv.Itoa(remote.ID)
	now := time.Now().UTC()
	encoded, _ := json.Marshal(tags)
	post.RemoteID = &remoteID
	post.RemoteURL = remote.Link
	post.PublishedAt = &now
	post.Category = category
	post.Tags = string(encoded)
	post.Status = models.PostStatusPublished
	if err := p.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	middleware.PipelineTransitions.WithLabelValues(models.PostStatusPublished).Inc()

	// Listing page maintenance is best effort; the post is already live.
	title := remote.Title.Rendered
	if title == "" {
		title = post.Title
	}
	if err := p.publisher.UpdateListing(ctx, wp, userID, category, remote.Link, title); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to update listing page",
			"post_id", postID, "error", err)
	}

	return post, nil
}

// SyncResult summarizes a reconciliation run.
type SyncResult struct {
	Imported  int `json:"imported"`
	Updated   int `json:"updated"`
	Recovered int `json:"recovered"`
	Total     int `json:"total_remote"`
}

// Sync reconciles local posts against the remote blog host. Remote posts are
// matched by remote ID, then by normalized title; unmatched remotes are
// imported as published. Running it twice in a row is a no-op.
func (p *Pipeline) Sync(ctx context.Context, userID uint) (*SyncResult, error) {
	span, ctx := observability.NewSpan(ctx, "pipeline.Sync")
	defer span.End()

	result, err := p.sync(ctx, userID)
	span.SetError(err)
	return result, err
}

func (p *Pipeline) sync(ctx context.Context, userID uint) (*SyncResult, error) {
	mu := p.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	creds, err := p.users.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if creds.WordPress.BaseURL == "" {
		return nil, models.NewValidationError("No blog host configured for this user")
	}

	wp := p.publisher.Client(creds.WordPress)
	remotes, err := wp.ListPosts(ctx)
	if err != nil {
		return nil, err
	}

	locals, err := p.postRepo.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	byRemoteID := make(map[string]*models.Post, len(locals))
	byTitle := make(map[string]*models.Post, len(locals))
	for i := range locals {
		post := &locals[i]
		if post.RemoteID != nil {
			byRemoteID[*post.RemoteID] = post
		}
		byTitle[NormalizeTitle(post.Title)] = post
	}

	result := &SyncResult{Total: len(remotes)}
	for _, remote := range remotes {
		remoteID := strconv.Itoa(remote.ID)
		title := remote.Title.Rendered

		local := byRemoteID[remoteID]
		if local == nil {
			local = byTitle[NormalizeTitle(title)]
		}

		publishedAt := parseRemoteTime(remote.DateGMT)

		if local == nil {
			imported := &models.Post{
				UserID:      userID,
				Title:       title,
				Content:     remote.Content.Rendered,
				Status:      models.PostStatusPublished,
				RemoteID:    &remoteID,
				RemoteURL:   remote.Link,
				PublishedAt: publishedAt,
			}
			if err := p.postRepo.Create(ctx, imported); err != nil {
				return result, err
			}
			result.Imported++
			continue
		}

		changed := false
		if local.RemoteID == nil || *local.RemoteID != remoteID {
			local.RemoteID = &remoteID
			changed = true
		}
		if local.RemoteURL != remote.Link && remote.Link != "" {
			local.RemoteURL = remote.Link
			changed = true
		}
		if local.PublishedAt == nil && publishedAt != nil {
			local.PublishedAt = publishedAt
			changed = true
		}
		if local.Status != models.PostStatusPublished {
			if local.Status == models.PostStatusSyncFailed {
				result.Recovered++
			}
			local.Status = models.PostStatusPublished
			changed = true
		}
		if changed {
			if err := p.postRepo.Update(ctx, local); err != nil {
				return result, err
			}
			result.Updated++
		}
	}

	middleware.Logger.InfoContext(ctx, "sync completed",
		"imported", result.Imported, "updated", result.Updated, "recovered", result.Recovered)
	return result, nil
}

// RebuildEmbeddings recomputes every stored embedding from the topic table.
func (p *Pipeline) RebuildEmbeddings(ctx context.Context, userID uint) (int, error) {
	apiKey, err := p.apiKey(ctx, userID)
	if err != nil {
		return 0, err
	}
	return p.store.Rebuild(ctx, userID, apiKey)
}

// CleanupEmbeddings drops embedding records whose topic no longer exists.
func (p *Pipeline) CleanupEmbeddings(ctx context.Context, userID uint) (int, error) {
	return p.store.Cleanup(ctx, userID)
}

func (p *Pipeline) existingTitles(ctx context.Context, userID uint) ([]string, error) {
	posts, err := p.postRepo.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	topics, err := p.topicRepo.List(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(posts)+len(topics))
	for _, post := range posts {
		titles = append(titles, post.Title)
	}
	for _, topic := range topics {
		titles = append(titles, topic.Text)
	}
	return titles, nil
}

// uncoveredPool returns configured pool topics not mentioned in any existing
// title.
func (p *Pipeline) uncoveredPool(existing []string) []string {
	if len(p.cfg.TopicPool) == 0 {
		return nil
	}
	lowered := make([]string, len(existing))
	for i, t := range existing {
		lowered[i] = strings.ToLower(t)
	}

	var uncovered []string
	for _, candidate := range p.cfg.TopicPool {
		cl := strings.ToLower(strings.TrimSpace(candidate))
		if cl == "" {
			continue
		}
		covered := false
		for _, title := range lowered {
			if strings.Contains(title, cl) {
				covered = true
				break
			}
		}
		if !covered {
			uncovered = append(uncovered, strings.TrimSpace(candidate))
		}
	}
	return uncovered
}

func parseRemoteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
