package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
	"blogforge/internal/repository"
	"blogforge/internal/secrets"
)

// BackupArchive is the JSON snapshot written to disk. The settings travel
// without their sealed credentials, which never leave the database.
type BackupArchive struct {
	UserID     uint                 `json:"user_id"`
	Username   string               `json:"username"`
	BackupTime time.Time            `json:"backup_time"`
	Settings   *models.UserSettings `json:"settings,omitempty"`
	Topics     []models.Topic       `json:"topics"`
	Posts      []models.Post        `json:"posts"`
	Embeddings []EmbeddingSnapshot  `json:"embeddings,omitempty"`
}

// EmbeddingSnapshot carries an embedding record through an archive. The model
// itself hides the vector from JSON, so archives use this shape instead.
type EmbeddingSnapshot struct {
	NormalizedText string `json:"normalized_text"`
	Vector         string `json:"vector"`
}

// Notifier sends backup completion notices. Satisfied by mailer.Mailer.
type Notifier interface {
	SendBackupNotification(to, username, filename string) error
}

// BackupService snapshots and restores a user's topics and posts.
type BackupService struct {
	userRepo  repository.UserRepository
	topicRepo repository.TopicRepository
	postRepo  repository.PostRepository
	users     *UserService
	notifier  Notifier
	dataDir   string
}

func NewBackupService(
	userRepo repository.UserRepository,
	topicRepo repository.TopicRepository,
	postRepo repository.PostRepository,
	users *UserService,
	notifier Notifier,
	dataDir string,
) *BackupService {
	return &BackupService{
		userRepo:  userRepo,
		topicRepo: topicRepo,
		postRepo:  postRepo,
		users:     users,
		notifier:  notifier,
		dataDir:   dataDir,
	}
}

// Create writes a snapshot archive for the user and returns its path.
// Encryption uses a key derived from the user's backup secret.
func (s *BackupService) Create(ctx context.Context, userID uint, encrypt bool) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	settings, err := s.users.GetSettings(ctx, userID)
	if err != nil {
		return "", err
	}
	topics, err := s.topicRepo.List(ctx, userID, true)
	if err != nil {
		return "", err
	}
	posts, err := s.postRepo.ListAll(ctx, userID)
	if err != nil {
		return "", err
	}
	recs, err := s.topicRepo.ListEmbeddings(ctx, userID)
	if err != nil {
		return "", err
	}
	embeddings := make([]EmbeddingSnapshot, 0, len(recs))
	for _, rec := range recs {
		embeddings = append(embeddings, EmbeddingSnapshot{
			NormalizedText: rec.NormalizedText,
			Vector:         rec.Vector,
		})
	}

	archive := BackupArchive{
		UserID:     userID,
		Username:   user.Username,
		BackupTime: time.Now().UTC(),
		Settings:   settings,
		Topics:     topics,
		Posts:      posts,
		Embeddings: embeddings,
	}
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return "", models.NewInternalError(err)
	}

	if encrypt {
		creds, err := s.users.Credentials(ctx, userID)
		if err != nil {
			return "", err
		}
		if creds.BackupSecret == "" {
			return "", models.NewValidationError("Encrypted backups require encrypt_backup enabled in settings")
		}
		data, err = secrets.EncryptWithSecret(creds.BackupSecret, data)
		if err != nil {
			return "", models.NewInternalError(err)
		}
	}

	dir := filepath.Join(UserDataDir(s.dataDir, userID), "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewInternalError(err)
	}
	path := filepath.Join(dir, BackupFileName(encrypt))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", models.NewInternalError(err)
	}

	if settings.EmailAfterBackup && s.notifier != nil && user.Email != "" {
		if err := s.notifier.SendBackupNotification(user.Email, user.Username, filepath.Base(path)); err != nil {
			middleware.Logger.WarnContext(ctx, "backup notification failed",
				"user_id", userID, "error", err)
		}
	}

	middleware.Logger.InfoContext(ctx, "backup created",
		"user_id", userID, "file", filepath.Base(path), "encrypted", encrypt)
	return path, nil
}

// Latest returns the path of the newest backup archive, or "" when none
// exists.
func (s *BackupService) Latest(userID uint) (string, error) {
	dir := filepath.Join(UserDataDir(s.dataDir, userID), "backups")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", models.NewInternalError(err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "backup_") && (strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.enc")) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	// Names embed a sortable UTC timestamp.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Restore replaces the user's topics, posts, embeddings, and non-credential
// settings with an archive's contents, keeping the archived topic and post
// IDs. All-or-nothing: a malformed, foreign, or undecryptable archive changes
// nothing. asAdmin permits restoring an archive owned by another user into
// that user's account.
func (s *BackupService) Restore(ctx context.Context, userID uint, data []byte, asAdmin bool) error {
	payload := data
	if !json.Valid(payload) {
		// Not plaintext JSON: try decrypting with the user's backup secret.
		creds, err := s.users.Credentials(ctx, userID)
		if err != nil {
			return err
		}
		if creds.BackupSecret == "" {
			return models.NewRestoreError("archive is encrypted and no backup secret is configured", nil)
		}
		payload, err = secrets.DecryptWithSecret(creds.BackupSecret, data)
		if err != nil {
			return models.NewRestoreError("failed to decrypt backup archive", err)
		}
	}

	var archive BackupArchive
	if err := json.Unmarshal(payload, &archive); err != nil {
		return models.NewRestoreError("backup archive is not valid JSON", err)
	}
	if archive.UserID == 0 {
		return models.NewRestoreError("backup archive has no owner", nil)
	}

	targetID := userID
	if archive.UserID != userID {
		if !asAdmin {
			return models.NewRestoreError("backup archive belongs to a different user", nil)
		}
		targetID = archive.UserID
	}

	recs := make([]models.EmbeddingRecord, 0, len(archive.Embeddings))
	for _, snap := range archive.Embeddings {
		recs = append(recs, models.EmbeddingRecord{
			UserID:         targetID,
			NormalizedText: snap.NormalizedText,
			Vector:         snap.Vector,
		})
	}

	set := repository.RestoreSet{
		Topics:     archive.Topics,
		Posts:      archive.Posts,
		Embeddings: recs,
		Settings:   archive.Settings,
	}
	if err := s.postRepo.ReplaceAll(ctx, targetID, set); err != nil {
		return models.NewRestoreError("failed to restore backup", err)
	}

	middleware.Logger.InfoContext(ctx, "backup restored",
		"user_id", targetID, "topics", len(archive.Topics), "posts", len(archive.Posts))
	return nil
}
