package server

import (
	"strconv"

	"blogforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// currentUserID returns the authenticated user's ID set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("userID").(uint); ok {
		return id
	}
	return 0
}

// parseIDParam parses a numeric :id route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("Invalid ID parameter")
	}
	return uint(id), nil
}

// respondServiceError maps an AppError code to an HTTP status. Pipeline
// failures like duplicate topics and remote rejections are client-visible
// conditions, not 500s.
func respondServiceError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	status := fiber.StatusInternalServerError

	if e, ok := err.(*models.AppError); ok {
		appErr = e
	}
	if appErr != nil {
		switch appErr.Code {
		case models.CodeNotFound:
			status = fiber.StatusNotFound
		case models.CodeValidation, models.CodeRestore:
			status = fiber.StatusBadRequest
		case models.CodeUnauthorized:
			status = fiber.StatusUnauthorized
		case models.CodeTopicAlreadyUsed:
			status = fiber.StatusConflict
		case models.CodeNoUniqueTopic:
			status = fiber.StatusUnprocessableEntity
		case models.CodeUpstream, models.CodePublish:
			status = fiber.StatusBadGateway
		case models.CodeGeneration:
			status = fiber.StatusBadGateway
		}
	}

	return models.RespondWithError(c, status, err)
}
