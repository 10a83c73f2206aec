package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/middleware"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/service"
)

const signatureHeader = "X-Tilopay-Signature"

type PaymentController struct {
	Payments *service.PaymentService
}

func NewPaymentController(payments *service.PaymentService) *PaymentController {
	return &PaymentController{Payments: payments}
}

// POST /api/payments
func (pc *PaymentController) Create(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var body struct {
		OrderID     uuid.UUID           `json:"order_id"`
		Method      model.PaymentMethod `json:"payment_method"`
		WalletPhone string              `json:"wallet_phone"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	initiation, err := pc.Payments.InitiateForOrder(c.UserContext(), user, body.OrderID, body.Method, body.WalletPhone)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{
			"error":     err.Error(),
			"retryable": apperr.Retryable(err),
		})
	}
	return c.Status(201).JSON(initiation)
}

// GET /api/payments
func (pc *PaymentController) List(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	payments, err := pc.Payments.List(c.UserContext(), user)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(payments)
}

// GET /api/payments/stats
func (pc *PaymentController) Stats(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	stats, err := pc.Payments.Stats(c.UserContext(), user)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// GET /api/payments/:id
func (pc *PaymentController) Get(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payment id"})
	}

	payment, err := pc.Payments.Get(c.UserContext(), user, id)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(payment)
}

// POST /api/payments/:id/refund
func (pc *PaymentController) Refund(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payment id"})
	}

	var body struct {
		Amount *decimal.Decimal `json:"amount"`
		Reason string           `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	payment, err := pc.Payments.Refund(c.UserContext(), user, id, body.Amount, body.Reason)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message": "refund processed",
		"payment": payment,
	})
}

// POST /api/payments/:id/sync
func (pc *PaymentController) Sync(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid payment id"})
	}

	result, err := pc.Payments.SyncStatus(c.UserContext(), id)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"payment":   result.Payment,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	})
}

// POST /api/payments/gateway/webhook
//
// Unauthenticated by design; trust comes from the HMAC signature over
// the raw body. Non-200 only for a bad signature, a malformed payload
// or an unknown external id: duplicates and out-of-order deliveries are
// acknowledged so the gateway stops redelivering them.
func (pc *PaymentController) Webhook(c *fiber.Ctx) error {
	result, err := pc.Payments.HandleWebhook(c.UserContext(), c.Body(), c.Get(signatureHeader))
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if result.Duplicate {
		return c.JSON(fiber.Map{"message": "already processed"})
	}
	if result.Ignored {
		return c.JSON(fiber.Map{"message": "acknowledged"})
	}
	return c.JSON(fiber.Map{"message": "ok"})
}
