package server

import (
	"blogforge/internal/cache"
	"blogforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetPosts returns the user's posts, optionally filtered by ?status=.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	userID := currentUserID(c)
	status := c.Query("status")
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	if status != "" {
		switch status {
		case models.PostStatusDraft, models.PostStatusPreviewed,
			models.PostStatusPublished, models.PostStatusSyncFailed:
		default:
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid status filter"))
		}
	}

	posts, err := s.postRepo.List(c.Context(), userID, status, limit, offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"posts": posts,
		"count": len(posts),
	})
}

// GetPost returns a single post the user owns.
func (s *Server) GetPost(c *fiber.Ctx) error {
	userID := currentUserID(c)

	id, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	post, err := s.postRepo.GetByID(c.Context(), userID, id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(post)
}

// DeletePost removes a local post. The remote copy, if any, is untouched.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := currentUserID(c)

	id, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	if err := s.postRepo.Delete(c.Context(), userID, id); err != nil {
		return respondServiceError(c, err)
	}
	cache.InvalidatePost(c.Context(), id)

	return c.JSON(fiber.Map{"message": "Post deleted"})
}

// GeneratePost consumes a topic and writes a draft about it.
func (s *Server) GeneratePost(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var input struct {
		TopicID  uint   `json:"topic_id"`
		PostType string `json:"post_type"`
	}
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if input.TopicID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("topic_id is required"))
	}

	post, err := s.pipeline.GenerateDraft(c.UserContext(), userID, input.TopicID, input.PostType)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// PreviewPost moves a draft to previewed.
func (s *Server) PreviewPost(c *fiber.Ctx) error {
	userID := currentUserID(c)

	id, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	post, err := s.pipeline.Preview(c.UserContext(), userID, id)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(post)
}

// PublishPost pushes a post to the blog host.
func (s *Server) PublishPost(c *fiber.Ctx) error {
	userID := currentUserID(c)

	id, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	post, err := s.pipeline.Publish(c.UserContext(), userID, id)
	if err != nil {
		return respondServiceError(c, err)
	}
	cache.InvalidatePost(c.Context(), id)

	return c.JSON(post)
}

// SyncPosts reconciles local posts against the blog host.
func (s *Server) SyncPosts(c *fiber.Ctx) error {
	userID := currentUserID(c)

	result, err := s.pipeline.Sync(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(result)
}
