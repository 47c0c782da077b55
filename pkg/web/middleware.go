package web

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// TenantHeader identifies the tenant on every tenant-scoped endpoint.
const TenantHeader = "X-Tenant-ID"

const tenantLocalsKey = "tenant_id"

// RequireTenant rejects requests without a tenant header and stores the
// tenant ID for handlers downstream.
func RequireTenant() fiber.Handler {
	return func(c fiber.Ctx) error {
		tenant := strings.TrimSpace(c.Get(TenantHeader))
		if tenant == "" {
			return fail(c, fiber.StatusBadRequest, TenantHeader+" header is required")
		}

		c.Locals(tenantLocalsKey, tenant)

		return c.Next()
	}
}

func tenantID(c fiber.Ctx) string {
	tenant, _ := c.Locals(tenantLocalsKey).(string)

	return tenant
}

// CronAuth guards the cron ingress with a shared bearer secret. An empty
// secret disables the check for local development.
func CronAuth(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		auth := c.Get("Authorization")
		expected := "Bearer " + secret

		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			return unauthorized(c, "invalid or missing cron secret")
		}

		return c.Next()
	}
}
