// Package apierr carries stable error codes from handlers to the HTTP error handler.
package apierr

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(fiber.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(message string) *Error {
	return New(fiber.StatusNotFound, "NOT_FOUND", message)
}

func Internal(err error) *Error {
	return New(fiber.StatusInternalServerError, "INTERNAL", err.Error())
}

// Handler is a fiber.ErrorHandler writing {"code","message"} bodies.
func Handler(c *fiber.Ctx, err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Status).JSON(apiErr)
	}

	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	return c.Status(status).JSON(&Error{
		Code:    codeFromStatus(status),
		Message: err.Error(),
	})
}

func codeFromStatus(status int) string {
	text := utils.StatusMessage(status)
	if text == "" {
		return "INTERNAL"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}
