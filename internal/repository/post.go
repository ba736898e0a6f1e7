package repository

import (
	"context"
	"errors"

	"blogforge/internal/cache"
	"blogforge/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	GetByID(ctx context.Context, userID, id uint) (*models.Post, error)
	GetByRemoteID(ctx context.Context, userID uint, remoteID string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, userID, id uint) error
	List(ctx context.Context, userID uint, status string, limit, offset int) ([]models.Post, error)
	ListAll(ctx context.Context, userID uint) ([]models.Post, error)

	// UpdateStatus transitions a post only when it currently has fromStatus.
	// Returns false when the post was in a different state.
	UpdateStatus(ctx context.Context, userID, id uint, fromStatus, toStatus string) (bool, error)

	// ReplaceAll swaps the user's entire dataset for the given set in one
	// transaction. Used by restore.
	ReplaceAll(ctx context.Context, userID uint, set RestoreSet) error
}

// RestoreSet is the per-user dataset swapped in by ReplaceAll. Topic and post
// IDs are kept as given so posts keep pointing at their topics; a nil
// Settings leaves the stored settings alone.
type RestoreSet struct {
	Topics     []models.Topic
	Posts      []models.Post
	Embeddings []models.EmbeddingRecord
	Settings   *models.UserSettings
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByID(ctx context.Context, userID, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) GetByRemoteID(ctx context.Context, userID uint, remoteID string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND remote_id = ?", userID, remoteID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidatePost(ctx, post.ID)
	return nil
}

func (r *postRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Post{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	cache.InvalidatePost(ctx, id)
	return nil
}

func (r *postRepository) List(ctx context.Context, userID uint, status string, limit, offset int) ([]models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var posts []models.Post
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) ListAll(ctx context.Context, userID uint) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, userID, id uint, fromStatus, toStatus string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, fromStatus).
		Update("status", toStatus)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	cache.InvalidatePost(ctx, id)
	return res.RowsAffected > 0, nil
}

func (r *postRepository) ReplaceAll(ctx context.Context, userID uint, set RestoreSet) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Topic{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.EmbeddingRecord{}).Error; err != nil {
			return err
		}
		for i := range set.Topics {
			set.Topics[i].UserID = userID
			if err := tx.Create(&set.Topics[i]).Error; err != nil {
				return err
			}
		}
		for i := range set.Posts {
			set.Posts[i].UserID = userID
			if err := tx.Create(&set.Posts[i]).Error; err != nil {
				return err
			}
		}
		for i := range set.Embeddings {
			set.Embeddings[i].ID = 0
			set.Embeddings[i].UserID = userID
			if err := tx.Create(&set.Embeddings[i]).Error; err != nil {
				return err
			}
		}
		if set.Settings != nil {
			if err := restoreSettings(tx, userID, set.Settings); err != nil {
				return err
			}
		}
		// Explicit-ID inserts leave postgres sequences behind; realign them.
		if tx.Dialector.Name() == "postgres" {
			for _, table := range []string{"topics", "posts"} {
				if err := tx.Exec(
					"SELECT setval(pg_get_serial_sequence(?, 'id'), (SELECT COALESCE(MAX(id), 1) FROM "+table+"))",
					table,
				).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// restoreSettings overlays archived settings onto the stored row. Sealed
// credentials never travel in archives, so the stored ones are kept.
func restoreSettings(tx *gorm.DB, userID uint, archived *models.UserSettings) error {
	var current models.UserSettings
	err := tx.Where("user_id = ?", userID).First(&current).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	current.UserID = userID
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

	if exists {
		return tx.Save(&current).Error
	}
	return tx.Create(&current).Error
}
