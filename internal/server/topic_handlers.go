package server

import (
	"blogforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetTopics returns the user's topics. ?include_used=true includes topics
// already consumed by a draft.
func (s *Server) GetTopics(c *fiber.Ctx) error {
	userID := currentUserID(c)
	includeUsed := c.QueryBool("include_used", false)

	topics, err := s.topicRepo.List(c.Context(), userID, includeUsed)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"topics": topics,
		"count":  len(topics),
	})
}

// SuggestTopic asks the pipeline for a topic that passes the duplicate gate.
func (s *Server) SuggestTopic(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var input struct {
		PostType string `json:"post_type"`
	}
	if err := c.BodyParser(&input); err != nil && len(c.Body()) > 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if input.PostType == "" {
		input.PostType = models.PostTypeGeneral
	}
	if !models.ValidPostType(input.PostType) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid post type"))
	}

	topic, err := s.pipeline.SuggestTopic(c.UserContext(), userID, input.PostType)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(topic)
}

// CheckSimilarity returns the stored texts nearest to an arbitrary probe.
func (s *Server) CheckSimilarity(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var input struct {
		Text string `json:"text"`
		TopK int    `json:"top_k"`
	}
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if input.Text == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("text is required"))
	}
	if input.TopK <= 0 || input.TopK > 20 {
		input.TopK = 5
	}

	matches, err := s.pipeline.CheckSimilarity(c.UserContext(), userID, input.Text, input.TopK)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"matches": matches,
		"count":   len(matches),
	})
}

// CleanupEmbeddings removes embedding records whose topic was deleted.
func (s *Server) CleanupEmbeddings(c *fiber.Ctx) error {
	userID := currentUserID(c)

	removed, err := s.pipeline.CleanupEmbeddings(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"removed": removed})
}

// RebuildEmbeddings recomputes all stored embeddings from topics.
func (s *Server) RebuildEmbeddings(c *fiber.Ctx) error {
	userID := currentUserID(c)

	rebuilt, err := s.pipeline.RebuildEmbeddings(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"rebuilt": rebuilt})
}

// DeleteTopic removes a topic the user owns.
func (s *Server) DeleteTopic(c *fiber.Ctx) error {
	userID := currentUserID(c)

	id, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	if err := s.topicRepo.Delete(c.Context(), userID, id); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Topic deleted"})
}
