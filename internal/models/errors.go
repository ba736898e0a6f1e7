package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes carried by AppError
const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeGeneration       = "GENERATION_ERROR"
	CodePublish          = "PUBLISH_ERROR"
	CodeNoUniqueTopic    = "NO_UNIQUE_TOPIC"
	CodeTopicAlreadyUsed = "TOPIC_ALREADY_USED"
	CodeRestore          = "RESTORE_ERROR"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// NewUpstreamError wraps a failure talking to an external API (completion,
// embedding, or blog host). status is the upstream HTTP status, 0 when the
// request never got a response.
func NewUpstreamError(api string, status int, err error) *AppError {
	msg := fmt.Sprintf("%s API request failed", api)
	if status != 0 {
		msg = fmt.Sprintf("%s API request failed with status %d", api, status)
	}
	return &AppError{
		Code:    CodeUpstream,
		Message: msg,
		Err:     err,
	}
}

// NewGenerationError marks model output that could not be parsed into a draft.
func NewGenerationError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeGeneration,
		Message: message,
		Err:     err,
	}
}

// NewPublishError wraps a remote rejection of a post or page write.
func NewPublishError(status int, message string) *AppError {
	return &AppError{
		Code:    CodePublish,
		Message: fmt.Sprintf("blog host rejected the write (status %d): %s", status, message),
	}
}

// NewNoUniqueTopicError signals that topic suggestion exhausted its retry
// budget without producing a non-duplicate topic.
func NewNoUniqueTopicError(attempts int) *AppError {
	return &AppError{
		Code:    CodeNoUniqueTopic,
		Message: fmt.Sprintf("no unique topic found after %d attempts", attempts),
	}
}

// NewTopicAlreadyUsedError signals a lost race on topic consumption.
func NewTopicAlreadyUsedError(topicID uint) *AppError {
	return &AppError{
		Code:    CodeTopicAlreadyUsed,
		Message: fmt.Sprintf("topic %d has already been used for a draft", topicID),
	}
}

// NewRestoreError marks an invalid, foreign, or undecryptable backup archive.
func NewRestoreError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeRestore,
		Message: message,
		Err:     err,
	}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	if appErr, ok := err.(*AppError); ok {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
