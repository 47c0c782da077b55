package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/quivela/relay/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func unauthorized(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail(detail)

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// ok and fail build the envelope responses used by the webhook endpoints.
func ok(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Data: data})
}

func fail(c fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(Envelope{Success: false, Error: detail})
}

// webhookError maps service errors onto envelope responses.
func webhookError(c fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors

	switch {
	case persistence.IsNotFound(err):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.As(err, &validationErrs):
		return fail(c, fiber.StatusBadRequest, err.Error())
	default:
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}
}
