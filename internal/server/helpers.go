package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"agora/internal/models"
	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return fiber.StatusNotFound
	case models.KindForbidden:
		return fiber.StatusForbidden
	case models.KindInvalidInput, models.KindInvalidParent:
		return fiber.StatusBadRequest
	case models.KindConflict:
		return fiber.StatusConflict
	case models.KindStoreUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondWithError writes err as a models.ErrorResponse. Causes of server-side
// failures are logged but never sent to the client.
func respondWithError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}
	status := statusFor(appErr.Kind())

	if status >= fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("code", appErr.Code), slog.String("error", err.Error()))
	}

	return c.Status(status).JSON(models.ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// errorHandler is the app-level fallback for errors handlers return instead of writing.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return respondWithError(c, err)
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = respondWithError(c, models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// parseRef reads the :type and :id route parameters.
func parseRef(c *fiber.Ctx) (models.ContentRef, error) {
	contentType, err := models.ParseContentType(c.Params("type"))
	if err != nil {
		_ = respondWithError(c, err)
		return models.ContentRef{}, errResponseWritten
	}
	id, err := parseID(c, "id")
	if err != nil {
		return models.ContentRef{}, err
	}
	return models.ContentRef{Type: contentType, ID: id}, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "postId" -> "post ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// parseTopics splits a comma separated ?topics= value into cache keys.
func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
