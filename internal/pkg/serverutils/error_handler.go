package serverutils

import (
	"errors"

	"chain-of-agents-be/pkg/coa"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var reqErr *RequestValidationError
	var validationErr *coa.ValidationError
	var inferenceErr *coa.InferenceError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &reqErr), errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, coa.ErrRunInProgress):
		return fiber.StatusConflict
	case errors.As(err, &inferenceErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware renders handler errors as BaseResponse bodies.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}
