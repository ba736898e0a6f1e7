package repository

import (
	"context"
	"regexp"
	"testing"

	"blogforge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestPostRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "title", "status"}).
			AddRow(1, 7, "Docker Basics", models.PostStatusDraft)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE user_id = $1`)).
			WithArgs(7, 1, 1).
			WillReturnRows(rows)

		post, err := repo.GetByID(ctx, 7, 1)
		assert.NoError(t, err)
		assert.Equal(t, "Docker Basics", post.Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE user_id = $1`)).
			WithArgs(7, 99, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.GetByID(ctx, 7, 99)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostRepository_GetByRemoteID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "remote_id"}).
			AddRow(1, 7, "wp-42")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts"`)).
			WithArgs(7, "wp-42", 1).
			WillReturnRows(rows)

		post, err := repo.GetByRemoteID(ctx, 7, "wp-42")
		assert.NoError(t, err)
		assert.Equal(t, "wp-42", *post.RemoteID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Absent Is Not An Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts"`)).
			WithArgs(7, "wp-404", 1).
			WillReturnError(gorm.ErrRecordNotFound)

		post, err := repo.GetByRemoteID(ctx, 7, "wp-404")
		assert.NoError(t, err)
		assert.Nil(t, post)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostRepository_UpdateStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	t.Run("Transition Applies", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "status"`)).
			WithArgs(models.PostStatusPreviewed, sqlmock.AnyArg(), 1, 7, models.PostStatusDraft).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.UpdateStatus(ctx, 7, 1, models.PostStatusDraft, models.PostStatusPreviewed)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Wrong Current Status", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "status"`)).
			WithArgs(models.PostStatusPreviewed, sqlmock.AnyArg(), 1, 7, models.PostStatusDraft).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := repo.UpdateStatus(ctx, 7, 1, models.PostStatusDraft, models.PostStatusPreviewed)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
