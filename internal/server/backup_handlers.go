package server

import (
	"io"
	"path/filepath"
	"strings"

	"blogforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateBackup writes a snapshot archive of the user's topics and posts.
// Encryption follows the user's encrypt_backup setting unless overridden in
// the request body.
func (s *Server) CreateBackup(c *fiber.Ctx) error {
	userID := currentUserID(c)

	settings, err := s.userService.GetSettings(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	encrypt := settings.EncryptBackup
	var input struct {
		Encrypt *bool `json:"encrypt"`
	}
	if err := c.BodyParser(&input); err == nil && input.Encrypt != nil {
		encrypt = *input.Encrypt
	}

	path, err := s.backupService.Create(c.UserContext(), userID, encrypt)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"file":      filepath.Base(path),
		"encrypted": encrypt,
	})
}

// DownloadLatestBackup streams the newest backup archive.
func (s *Server) DownloadLatestBackup(c *fiber.Ctx) error {
	userID := currentUserID(c)

	path, err := s.backupService.Latest(userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if path == "" {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Backup", "latest"))
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filepath.Base(path)+`"`)
	if strings.HasSuffix(path, ".enc") {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return c.SendFile(path)
}

// RestoreBackup replaces the user's topics and posts with an uploaded
// archive. Accepts a multipart file upload or a raw body.
func (s *Server) RestoreBackup(c *fiber.Ctx) error {
	userID := currentUserID(c)

	data, err := restorePayload(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	asAdmin := false
	if c.QueryBool("as_admin", false) {
		user, err := s.userRepo.GetByID(c.Context(), userID)
		if err != nil {
			return respondServiceError(c, err)
		}
		asAdmin = user.IsAdmin
	}

	if err := s.backupService.Restore(c.UserContext(), userID, data, asAdmin); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Backup restored"})
}

func restorePayload(c *fiber.Ctx) ([]byte, error) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, models.NewValidationError("Could not read uploaded file")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, models.NewValidationError("Could not read uploaded file")
		}
		return data, nil
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, models.NewValidationError("No backup archive provided")
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
