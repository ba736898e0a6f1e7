// Package service contains the application's business logic.
package service

import (
	"context"

	"blogforge/internal/models"
	"blogforge/internal/repository"
	"blogforge/internal/secrets"
	"blogforge/internal/validation"
	"blogforge/internal/wordpress"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
	box      *secrets.Box
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateSettingsInput carries a settings update. Credential fields are
// plaintext on the way in and sealed before persistence; empty credential
// fields keep the stored value.
type UpdateSettingsInput struct {
	WordPressURL      string `json:"wordpress_url"`
	WordPressUsername string `json:"wordpress_username"`
	WordPressPassword string `json:"wordpress_password"`
	OpenAIKey         string `json:"openai_api_key"`
	ToolPrompt        string `json:"tool_prompt"`
	GeneralPrompt     string `json:"general_prompt"`
	GuidePrompt       string `json:"guide_prompt"`
	AutoSyncEnabled   *bool  `json:"auto_sync_enabled"`
	SyncIntervalHours *int   `json:"sync_interval_hours"`
	EnableBackup      *bool  `json:"enable_backup"`
	EncryptBackup     *bool  `json:"encrypt_backup"`
	EmailAfterBackup  *bool  `json:"email_after_backup"`
}

// Credentials is the decrypted view of a user's third-party secrets, built
// on demand and never persisted.
type Credentials struct {
	WordPress    wordpress.Credentials
	OpenAIKey    string
	BackupSecret string
}

func NewUserService(userRepo repository.UserRepository, box *secrets.Box) *UserService {
	return &UserService{userRepo: userRepo, box: box}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("Username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hash),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid username or password")
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	return s.userRepo.Delete(ctx, id)
}

// GetSettings returns the stored settings with credential fields sealed.
// Callers that need plaintext credentials use Credentials instead.
func (s *UserService) GetSettings(ctx context.Context, userID uint) (*models.UserSettings, error) {
	return s.userRepo.GetSettings(ctx, userID)
}

func (s *UserService) UpdateSettings(ctx context.Context, userID uint, in UpdateSettingsInput) (*models.UserSettings, error) {
	settings, err := s.userRepo.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.WordPressURL != "" {
		if err := validation.ValidateSiteURL(in.WordPressURL); err != nil {
			return nil, err
		}
	}

	settings.UserID = userID
	settings.WordPressURL = in.WordPressURL
	settings.WordPressUsername = in.WordPressUsername
	settings.ToolPrompt = in.ToolPrompt
	settings.GeneralPrompt = in.GeneralPrompt
	settings.GuidePrompt = in.GuidePrompt

	if in.WordPressPassword != "" {
		sealed, err := s.box.Seal(in.WordPressPassword)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		settings.WordPressPassword = sealed
	}
	if in.OpenAIKey != "" {
		sealed, err := s.box.Seal(in.OpenAIKey)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		settings.OpenAIKey = sealed
	}

	if in.AutoSyncEnabled != nil {
		settings.AutoSyncEnabled = *in.AutoSyncEnabled
	}
	if in.SyncIntervalHours != nil {
		if *in.SyncIntervalHours < 1 {
			return nil, models.NewValidationError("sync_interval_hours must be at least 1")
		}
		settings.SyncIntervalHours = *in.SyncIntervalHours
	}
	if in.EnableBackup != nil {
		settings.EnableBackup = *in.EnableBackup
	}
	if in.EncryptBackup != nil {
		settings.EncryptBackup = *in.EncryptBackup
	}
	if in.EmailAfterBackup != nil {
		settings.EmailAfterBackup = *in.EmailAfterBackup
	}

	// Encrypted backups need a per-user secret; generate one on first enable.
	if settings.EncryptBackup && settings.BackupSecret == "" {
		sealed, err := s.box.Seal(uuid.NewString())
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		settings.BackupSecret = sealed
	}

	if err := s.userRepo.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Credentials decrypts the user's stored secrets for upstream calls.
func (s *UserService) Credentials(ctx context.Context, userID uint) (*Credentials, error) {
	settings, err := s.userRepo.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	wpPassword, err := s.box.Open(settings.WordPressPassword)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	apiKey, err := s.box.Open(settings.OpenAIKey)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	backupSecret, err := s.box.Open(settings.BackupSecret)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	return &Credentials{
		WordPress: wordpress.Credentials{
			BaseURL:  settings.WordPressURL,
			Username: settings.WordPressUsername,
			Password: wpPassword,
		},
		OpenAIKey:    apiKey,
		BackupSecret: backupSecret,
	}, nil
}
