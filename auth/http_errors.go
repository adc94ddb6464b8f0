package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// Envelope is the success response body
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorEnvelope is the error response body
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}

// RespondOK writes a success envelope
func RespondOK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondError writes err as an error envelope with the given status
func RespondError(c *fiber.Ctx, status int, err error) error {
	richErr := RichError(err)
	body := ErrorEnvelope{
		Success: false,
		Code:    richErr.TextCode,
		Message: richErr.Message,
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		body.Errors = fieldErrs
	}

	return c.Status(status).JSON(body)
}

var statusCodes = map[int]string{
	fiber.StatusBadRequest:            "BadRequest",
	fiber.StatusNotFound:              "NotFound",
	fiber.StatusMethodNotAllowed:      "MethodNotAllowed",
	fiber.StatusRequestEntityTooLarge: "PayloadTooLarge",
	fiber.StatusTooManyRequests:       "TooManyRequests",
}

// ErrorHandler maps handler errors to error envelopes. Use it as the fiber
// application error handler.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code, ok := statusCodes[fe.Code]
			if !ok {
				code = "HTTPError"
			}
			if fe.Code >= fiber.StatusInternalServerError {
				logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
			}
			return c.Status(fe.Code).JSON(ErrorEnvelope{
				Success: false,
				Code:    code,
				Message: fe.Message,
			})
		}

		richErr := RichError(err)
		if richErr.Code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"category", richErr.Category,
				"error", err,
			)
		} else {
			logger.Debug("request rejected",
				"method", c.Method(),
				"path", c.Path(),
				"text_code", richErr.TextCode,
				"error", err,
			)
		}
		return RespondError(c, richErr.Code, err)
	}
}
