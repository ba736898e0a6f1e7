package server

import (
	"blogforge/internal/cache"
	"blogforge/internal/models"
	"blogforge/internal/service"

	"github.com/gofiber/fiber/v2"
)

// settingsView is the API shape of user settings. Credential fields are
// reported as booleans so sealed values never leave the server.
type settingsView struct {
	WordPressURL      string `json:"wordpress_url"`
	WordPressUsername string `json:"wordpress_username"`
	HasWordPressAuth  bool   `json:"has_wordpress_auth"`
	HasOpenAIKey      bool   `json:"has_openai_key"`
	ToolPrompt        string `json:"tool_prompt"`
	GeneralPrompt     string `json:"general_prompt"`
	GuidePrompt       string `json:"guide_prompt"`
	AutoSyncEnabled   bool   `json:"auto_sync_enabled"`
	SyncIntervalHours int    `json:"sync_interval_hours"`
	EnableBackup      bool   `json:"enable_backup"`
	EncryptBackup     bool   `json:"encrypt_backup"`
	EmailAfterBackup  bool   `json:"email_after_backup"`
}

func viewOf(settings *models.UserSettings) settingsView {
	return settingsView{
		WordPressURL:      settings.WordPressURL,
		WordPressUsername: settings.WordPressUsername,
		HasWordPressAuth:  settings.WordPressPassword != "",
		HasOpenAIKey:      settings.OpenAIKey != "",
		ToolPrompt:        settings.ToolPrompt,
		GeneralPrompt:     settings.GeneralPrompt,
		GuidePrompt:       settings.GuidePrompt,
		AutoSyncEnabled:   settings.AutoSyncEnabled,
		SyncIntervalHours: settings.SyncIntervalHours,
		EnableBackup:      settings.EnableBackup,
		EncryptBackup:     settings.EncryptBackup,
		EmailAfterBackup:  settings.EmailAfterBackup,
	}
}

// GetSettings returns the user's settings with credentials masked.
func (s *Server) GetSettings(c *fiber.Ctx) error {
	userID := currentUserID(c)

	settings, err := s.userService.GetSettings(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(viewOf(settings))
}

// UpdateSettings replaces the user's settings. Empty credential fields keep
// the stored values.
func (s *Server) UpdateSettings(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var input service.UpdateSettingsInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	settings, err := s.userService.UpdateSettings(c.Context(), userID, input)
	if err != nil {
		return respondServiceError(c, err)
	}
	cache.InvalidateUser(c.Context(), userID)

	return c.JSON(viewOf(settings))
}
