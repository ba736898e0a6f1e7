package service

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"

	"blogforge/internal/llm"
	"blogforge/internal/models"
	"blogforge/internal/repository"
	"blogforge/internal/secrets"
	"blogforge/internal/wordpress"
)

// testKey is a fixed 32-byte credential key for tests.
var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func testBox() *secrets.Box {
	box, err := secrets.NewBox(testKey)
	if err != nil {
		panic(err)
	}
	return box
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu       sync.Mutex
	nextID   uint
	users    map[uint]*models.User
	settings map[uint]*models.UserSettings
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:    make(map[uint]*models.User),
		settings: make(map[uint]*models.UserSettings),
	}
}

func (r *memUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	delete(r.settings, id)
	return nil
}

func (r *memUserRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.users[id])
	}
	return out, nil
}

func (r *memUserRepo) GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.settings[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return &models.UserSettings{
		UserID:            userID,
		SyncIntervalHours: models.DefaultSyncIntervalHours,
	}, nil
}

func (r *memUserRepo) SaveSettings(ctx context.Context, settings *models.UserSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *settings
	r.settings[settings.UserID] = &copied
	return nil
}

// restoreSettings overlays archived non-credential settings onto the stored
// row, mirroring the gorm repository's restore behavior.
func (r *memUserRepo) restoreSettings(userID uint, archived *models.UserSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.settings[userID]
	if !ok {
		current = &models.UserSettings{UserID: userID}
		r.settings[userID] = current
	}
	current.WordPressURL = archived.WordPressURL
	current.WordPressUsername = archived.WordPressUsername
	current.ToolPrompt = archived.ToolPrompt
	current.GeneralPrompt = archived.GeneralPrompt
	current.GuidePrompt = archived.GuidePrompt
	current.AutoSyncEnabled = archived.AutoSyncEnabled
	current.SyncIntervalHours = archived.SyncIntervalHours
	current.EnableBackup = archived.EnableBackup
	current.EncryptBackup = archived.EncryptBackup
	current.EmailAfterBackup = archived.EmailAfterBackup
	if current.SyncIntervalHours < 1 {
		current.SyncIntervalHours = models.DefaultSyncIntervalHours
	}
}

// memTopicRepo is an in-memory TopicRepository.
type memTopicRepo struct {
	mu         sync.Mutex
	nextID     uint
	topics     map[uint]*models.Topic
	embeddings []*models.EmbeddingRecord
}

func newMemTopicRepo() *memTopicRepo {
	return &memTopicRepo{topics: make(map[uint]*models.Topic)}
}

func (r *memTopicRepo) GetByID(ctx context.Context, userID, id uint) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID {
		return nil, models.NewNotFoundError("Topic", id)
	}
	copied := *t
	return &copied, nil
}

func (r *memTopicRepo) GetByNormalizedText(ctx context.Context, userID uint, normalized string) (*models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		if t.UserID == userID && t.NormalizedText == normalized {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memTopicRepo) Create(ctx context.Context, topic *models.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	topic.ID = r.nextID
	copied := *topic
	r.topics[topic.ID] = &copied
	return nil
}

func (r *memTopicRepo) List(ctx context.Context, userID uint, includeUsed bool) ([]models.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.topics))
	for id, t := range r.topics {
		if t.UserID != userID {
			continue
		}
		if !includeUsed && t.Used {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Topic, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.topics[id])
	}
	return out, nil
}

func (r *memTopicRepo) Delete(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID {
		return models.NewNotFoundError("Topic", id)
	}
	delete(r.topics, id)
	return nil
}

func (r *memTopicRepo) DeleteUnused(ctx context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.topics {
		if t.UserID == userID && !t.Used {
			delete(r.topics, id)
			n++
		}
	}
	return n, nil
}

func (r *memTopicRepo) Consume(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID {
		return models.NewNotFoundError("Topic", id)
	}
	if t.Used {
		return models.NewTopicAlreadyUsedError(id)
	}
	t.Used = true
	return nil
}

func (r *memTopicRepo) Release(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok || t.UserID != userID {
		return models.NewNotFoundError("Topic", id)
	}
	t.Used = false
	return nil
}

func (r *memTopicRepo) SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.embeddings {
		if existing.UserID == rec.UserID && existing.NormalizedText == rec.NormalizedText {
			return nil
		}
	}
	copied := *rec
	copied.ID = uint(len(r.embeddings) + 1)
	r.embeddings = append(r.embeddings, &copied)
	return nil
}

func (r *memTopicRepo) GetEmbedding(ctx context.Context, userID uint, normalized string) (*models.EmbeddingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.embeddings {
		if rec.UserID == userID && rec.NormalizedText == normalized {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memTopicRepo) ListEmbeddings(ctx context.Context, userID uint) ([]models.EmbeddingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EmbeddingRecord, 0, len(r.embeddings))
	for _, rec := range r.embeddings {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memTopicRepo) DeleteEmbedding(ctx context.Context, userID uint, normalized string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.embeddings {
		if rec.UserID == userID && rec.NormalizedText == normalized {
			r.embeddings = append(r.embeddings[:i], r.embeddings[i+1:]...)
			return nil
		}
	}
	return nil
}

// replaceFor swaps the user's topics and embedding records for the given
// set, keeping nonzero IDs the way the gorm repository does on restore.
func (r *memTopicRepo) replaceFor(userID uint, topics []models.Topic, recs []models.EmbeddingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.topics {
		if t.UserID == userID {
			delete(r.topics, id)
		}
	}
	var kept []*models.EmbeddingRecord
	for _, rec := range r.embeddings {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	r.embeddings = kept

	for i := range topics {
		copied := topics[i]
		copied.UserID = userID
		if copied.ID == 0 {
			r.nextID++
			copied.ID = r.nextID
		} else if copied.ID > r.nextID {
			r.nextID = copied.ID
		}
		r.topics[copied.ID] = &copied
	}
	for i := range recs {
		copied := recs[i]
		copied.UserID = userID
		copied.ID = uint(len(r.embeddings) + 1)
		r.embeddings = append(r.embeddings, &copied)
	}
}

func (r *memTopicRepo) DeleteEmbeddings(ctx context.Context, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.EmbeddingRecord
	var n int64
	for _, rec := range r.embeddings {
		if rec.UserID == userID {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.embeddings = kept
	return n, nil
}

// memPostRepo is an in-memory PostRepository. The topic and user repos are
// optional; when set, ReplaceAll restores topics, embeddings, and settings
// the way the gorm repository does.
type memPostRepo struct {
	mu     sync.Mutex
	nextID uint
	posts  map[uint]*models.Post
	topics *memTopicRepo
	users  *memUserRepo
}

func newMemPostRepo() *memPostRepo {
	return &memPostRepo{posts: make(map[uint]*models.Post)}
}

func (r *memPostRepo) GetByID(ctx context.Context, userID, id uint) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return nil, models.NewNotFoundError("Post", id)
	}
	copied := *p
	return &copied, nil
}

func (r *memPostRepo) GetByRemoteID(ctx context.Context, userID uint, remoteID string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.UserID == userID && p.RemoteID != nil && *p.RemoteID == remoteID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memPostRepo) Create(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	post.ID = r.nextID
	copied := *post
	r.posts[post.ID] = &copied
	return nil
}

func (r *memPostRepo) Update(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; !ok {
		return models.NewNotFoundError("Post", post.ID)
	}
	copied := *post
	r.posts[post.ID] = &copied
	return nil
}

func (r *memPostRepo) Delete(ctx context.Context, userID, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return models.NewNotFoundError("Post", id)
	}
	delete(r.posts, id)
	return nil
}

func (r *memPostRepo) List(ctx context.Context, userID uint, status string, limit, offset int) ([]models.Post, error) {
	all, _ := r.ListAll(ctx, userID)
	out := make([]models.Post, 0, len(all))
	for _, p := range all {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *memPostRepo) ListAll(ctx context.Context, userID uint) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.posts))
	for id, p := range r.posts {
		if p.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.posts[id])
	}
	return out, nil
}

func (r *memPostRepo) UpdateStatus(ctx context.Context, userID, id uint, fromStatus, toStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.UserID != userID || p.Status != fromStatus {
		return false, nil
	}
	p.Status = toStatus
	return true, nil
}

func (r *memPostRepo) ReplaceAll(ctx context.Context, userID uint, set repository.RestoreSet) error {
	r.mu.Lock()
	for id, p := range r.posts {
		if p.UserID == userID {
			delete(r.posts, id)
		}
	}
	for i := range set.Posts {
		copied := set.Posts[i]
		copied.UserID = userID
		if copied.ID == 0 {
			r.nextID++
			copied.ID = r.nextID
		} else if copied.ID > r.nextID {
			r.nextID = copied.ID
		}
		r.posts[copied.ID] = &copied
	}
	r.mu.Unlock()

	if r.topics != nil {
		r.topics.replaceFor(userID, set.Topics, set.Embeddings)
	}
	if r.users != nil && set.Settings != nil {
		r.users.restoreSettings(userID, set.Settings)
	}
	return nil
}

// stubCompleter returns canned completion output.
type stubCompleter struct {
	fn func(messages []llm.Message) (string, error)
}

func (s *stubCompleter) Complete(ctx context.Context, apiKey string, messages []llm.Message) (string, error) {
	return s.fn(messages)
}

// stubEmbedder returns canned vectors per normalized text.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	calls   int
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float64)}
}

func (s *stubEmbedder) set(text string, vec []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[NormalizeTitle(text)] = vec
}

func (s *stubEmbedder) Embed(ctx context.Context, apiKey, text string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if vec, ok := s.vectors[NormalizeTitle(text)]; ok {
		return vec, nil
	}
	// Unknown texts get an orthogonal default.
	return []float64{0, 0, 1}, nil
}

// fakeWP is a scriptable WPClient.
type fakeWP struct {
	mu          sync.Mutex
	createErr   error
	created     []wordpress.RemotePost
	nextID      int
	remotes     []wordpress.RemotePost
	listingID   int
	listingHTML string
	updatedHTML string
	tagCalls    [][]string
}

func (f *fakeWP) CreatePost(ctx context.Context, title, content string, tagIDs []int) (*wordpress.RemotePost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	post := wordpress.RemotePost{
		ID:   f.nextID + 100,
		Link: "https://blog.example/posts/" + title,
	}
	post.Title.Rendered = title
	f.created = append(f.created, post)
	return &post, nil
}

func (f *fakeWP) ListPosts(ctx context.Context) ([]wordpress.RemotePost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wordpress.RemotePost(nil), f.remotes...), nil
}

func (f *fakeWP) GetListingPage(ctx context.Context, slug string) (int, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listingID, f.listingHTML, nil
}

func (f *fakeWP) UpdatePage(ctx context.Context, pageID int, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedHTML = content
	return nil
}

func (f *fakeWP) EnsureTags(ctx context.Context, names []string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls = append(f.tagCalls, names)
	ids := make([]int, len(names))
	for i := range names {
		ids[i] = i + 1
	}
	return ids
}
