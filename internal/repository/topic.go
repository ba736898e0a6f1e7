package repository

import (
	"context"
	"errors"

	"blogforge/internal/models"

	"gorm.io/gorm"
)

// TopicRepository defines persistence operations for topics and their
// embedding records.
type TopicRepository interface {
	GetByID(ctx context.Context, userID, id uint) (*models.Topic, error)
	GetByNormalizedText(ctx context.Context, userID uint, normalized string) (*models.Topic, error)
	Create(ctx context.Context, topic *models.Topic) error
	List(ctx context.Context, userID uint, includeUsed bool) ([]models.Topic, error)
	Delete(ctx context.Context, userID, id uint) error
	DeleteUnused(ctx context.Context, userID uint) (int64, error)

	// Consume flips Used from false to true in a single conditional update.
	// Returns TopicAlreadyUsedError when another writer won the race.
	Consume(ctx context.Context, userID, id uint) error
	// Release reverts a consumed topic so it can be drafted again.
	Release(ctx context.Context, userID, id uint) error

	SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error
	GetEmbedding(ctx context.Context, userID uint, normalized string) (*models.EmbeddingRecord, error)
	ListEmbeddings(ctx context.Context, userID uint) ([]models.EmbeddingRecord, error)
	DeleteEmbedding(ctx context.Context, userID uint, normalized string) error
	DeleteEmbeddings(ctx context.Context, userID uint) (int64, error)
}

type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository returns a new TopicRepository implementation.
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) GetByID(ctx context.Context, userID, id uint) (*models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Topic", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &topic, nil
}

func (r *topicRepository) GetByNormalizedText(ctx context.Context, userID uint, normalized string) (*models.Topic, error) {
	var topic models.Topic
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND normalized_text = ?", userID, normalized).
		First(&topic).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &topic, nil
}

func (r *topicRepository) Create(ctx context.Context, topic *models.Topic) error {
	if err := r.db.WithContext(ctx).Create(topic).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *topicRepository) List(ctx context.Context, userID uint, includeUsed bool) ([]models.Topic, error) {
	var topics []models.Topic
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeUsed {
		q = q.Where("used = ?", false)
	}
	if err := q.Order("created_at DESC").Find(&topics).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return topics, nil
}

func (r *topicRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Topic{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Topic", id)
	}
	return nil
}

func (r *topicRepository) DeleteUnused(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND used = ?", userID, false).
		Delete(&models.Topic{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *topicRepository) Consume(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Topic{}).
		Where("id = ? AND user_id = ? AND used = ?", id, userID, false).
		Update("used", true)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the topic does not exist or it was consumed first.
		var topic models.Topic
		if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&topic, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Topic", id)
			}
			return models.NewInternalError(err)
		}
		return models.NewTopicAlreadyUsedError(id)
	}
	return nil
}

func (r *topicRepository) Release(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Topic{}).
		Where("id = ? AND user_id = ? AND used = ?", id, userID, true).
		Update("used", false)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	return nil
}

func (r *topicRepository) SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND normalized_text = ?", rec.UserID, rec.NormalizedText).
		FirstOrCreate(rec).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			// A concurrent writer inserted the same record first.
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *topicRepository) GetEmbedding(ctx context.Context, userID uint, normalized string) (*models.EmbeddingRecord, error) {
	var rec models.EmbeddingRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND normalized_text = ?", userID, normalized).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &rec, nil
}

func (r *topicRepository) ListEmbeddings(ctx context.Context, userID uint) ([]models.EmbeddingRecord, error) {
	var recs []models.EmbeddingRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return recs, nil
}

func (r *topicRepository) DeleteEmbedding(ctx context.Context, userID uint, normalized string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND normalized_text = ?", userID, normalized).
		Delete(&models.EmbeddingRecord{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *topicRepository) DeleteEmbeddings(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.EmbeddingRecord{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
