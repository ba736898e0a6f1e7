package server

import (
	"strconv"

	"blogforge/internal/cache"
	"blogforge/internal/middleware"
	"blogforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AdminListUsers returns all users, paginated.
func (s *Server) AdminListUsers(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	users, err := s.userService.ListUsers(c.Context(), limit, offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id":         u.ID,
			"username":   u.Username,
			"email":      u.Email,
			"is_admin":   u.IsAdmin,
			"created_at": u.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"users": out,
		"count": len(out),
	})
}

// AdminImpersonate issues a token for the target user with the admin's own
// ID recorded in the act claim. Every issuance is audit-logged.
func (s *Server) AdminImpersonate(c *fiber.Ctx) error {
	adminID := currentUserID(c)

	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	if targetID == adminID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Cannot impersonate yourself"))
	}

	target, err := s.userService.GetUser(c.Context(), targetID)
	if err != nil {
		return respondServiceError(c, err)
	}

	actor := strconv.FormatUint(uint64(adminID), 10)
	token, err := s.generateToken(target, actor)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	middleware.Logger.WarnContext(c.UserContext(), "impersonation token issued",
		"admin_id", adminID, "target_id", targetID, "target_username", target.Username)

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":       target.ID,
			"username": target.Username,
		},
	})
}

// AdminDeleteUser removes a user account and its cached entries.
func (s *Server) AdminDeleteUser(c *fiber.Ctx) error {
	adminID := currentUserID(c)

	targetID, err := parseIDParam(c, "id")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	if targetID == adminID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Cannot delete your own account"))
	}

	if err := s.userService.DeleteUser(c.Context(), targetID); err != nil {
		return respondServiceError(c, err)
	}
	cache.InvalidateUser(c.Context(), targetID)

	middleware.Logger.WarnContext(c.UserContext(), "user deleted by admin",
		"admin_id", adminID, "target_id", targetID)

	return c.JSON(fiber.Map{"message": "User deleted"})
}
