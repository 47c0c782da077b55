package web

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/quivela/relay/pkg/models"
)

const defaultStatsWindow = 24 * time.Hour

func (h *APIHandlers) GetSubscriptions(c fiber.Ctx) error {
	subs, err := h.webhooks.Subscriptions(c.Context(), tenantID(c))
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, subs)
}

func (h *APIHandlers) CreateSubscription(c fiber.Ctx) error {
	var req CreateSubscriptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sub := &models.WebhookSubscription{
		TenantID:       tenantID(c),
		URL:            req.URL,
		EventTypes:     req.EventTypes,
		Secret:         req.Secret,
		Active:         active,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		AllowedIPs:     req.AllowedIPs,
		Headers:        req.Headers,
	}

	created, err := h.webhooks.CreateSubscription(c.Context(), sub)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusCreated, created)
}

func (h *APIHandlers) GetSubscription(c fiber.Ctx) error {
	sub, err := h.webhooks.Subscription(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, sub)
}

func (h *APIHandlers) UpdateSubscription(c fiber.Ctx) error {
	var req CreateSubscriptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sub := &models.WebhookSubscription{
		ID:             c.Params("id"),
		URL:            req.URL,
		EventTypes:     req.EventTypes,
		Secret:         req.Secret,
		Active:         active,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		AllowedIPs:     req.AllowedIPs,
		Headers:        req.Headers,
	}

	updated, err := h.webhooks.UpdateSubscription(c.Context(), tenantID(c), sub)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, updated)
}

func (h *APIHandlers) DeleteSubscription(c fiber.Ctx) error {
	if err := h.webhooks.DeleteSubscription(c.Context(), tenantID(c), c.Params("id")); err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, nil)
}

func (h *APIHandlers) GetDeliveryLogs(c fiber.Ctx) error {
	limit, offset := pagination(c)

	logs, err := h.webhooks.DeliveryLogs(c.Context(), tenantID(c), c.Params("id"), limit, offset)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, logs)
}

func (h *APIHandlers) GetDeliveryStats(c fiber.Ctx) error {
	window := defaultStatsWindow

	if hoursStr := c.Query("hours"); hoursStr != "" {
		hours, err := time.ParseDuration(hoursStr + "h")
		if err != nil || hours <= 0 {
			return fail(c, fiber.StatusBadRequest, "invalid hours parameter")
		}

		window = hours
	}

	now := time.Now().UTC()

	stats, err := h.webhooks.Stats(c.Context(), tenantID(c), c.Params("id"), now.Add(-window), now)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, stats)
}

// GetReplayCandidates lists exhausted failed deliveries eligible for replay.
func (h *APIHandlers) GetReplayCandidates(c fiber.Ctx) error {
	failures, err := h.webhooks.FailedDeliveries(c.Context(), tenantID(c), c.Params("id"))
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, failures)
}

func (h *APIHandlers) ReplayDelivery(c fiber.Ctx) error {
	var req ReplayRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.webhooks.Replay(c.Context(), tenantID(c), req.FailureID)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusCreated, attempt)
}

func (h *APIHandlers) GetWebhookEvents(c fiber.Ctx) error {
	limit, offset := pagination(c)

	events, err := h.webhooks.Events(c.Context(), tenantID(c), c.Query("event_type"), limit, offset)
	if err != nil {
		return webhookError(c, err)
	}

	return ok(c, fiber.StatusOK, events)
}

// PublishEvent ingests a business event over HTTP. The response reports only
// acceptance; delivery outcomes are visible through the logs endpoints.
func (h *APIHandlers) PublishEvent(c fiber.Ctx) error {
	var req PublishEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	event, err := h.webhooks.Publish(c.Context(), tenantID(c), req.EventType, req.Payload)
	if err != nil {
		return webhookError(c, err)
	}

	// Event-triggered workflows ride the same ingress.
	h.trigger.TriggerForEvent(c.Context(), tenantID(c), req.EventType, req.Payload)

	return ok(c, fiber.StatusAccepted, event)
}
