package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/middleware"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/service"
)

type OrderController struct {
	Orders *service.OrderService
}

func NewOrderController(orders *service.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// POST /api/orders
func (oc *OrderController) Create(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	var body service.CreateOrderInput
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	order, initiation, err := oc.Orders.Create(c.UserContext(), user, body)
	if err != nil {
		resp := fiber.Map{"error": err.Error()}
		if order != nil {
			// The order exists; payment initiation failed and can be
			// retried via POST /api/payments.
			resp["order_id"] = order.ID
			resp["retryable"] = apperr.Retryable(err)
		}
		return c.Status(apperr.HTTPStatus(err)).JSON(resp)
	}

	resp := fiber.Map{"order": order}
	if initiation != nil {
		resp["payment"] = fiber.Map{
			"payment_id":  initiation.PaymentID,
			"payment_url": initiation.PaymentURL,
			"expires_at":  initiation.ExpiresAt,
		}
	}
	return c.Status(201).JSON(resp)
}

// GET /api/orders
func (oc *OrderController) List(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	filter := service.OrderFilter{
		Status:    model.OrderStatus(c.Query("status")),
		OrderType: model.OrderType(c.Query("order_type")),
	}

	orders, err := oc.Orders.List(c.UserContext(), user, filter)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(orders)
}

// GET /api/orders/:id
func (oc *OrderController) Get(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}

	order, err := oc.Orders.Get(c.UserContext(), user, id)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(order)
}

// POST /api/orders/:id/status
func (oc *OrderController) UpdateStatus(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}

	var body struct {
		Status model.OrderStatus `json:"status"`
		Notes  string            `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Status == "" {
		return c.Status(400).JSON(fiber.Map{"error": "status required"})
	}

	order, err := oc.Orders.UpdateStatus(c.UserContext(), user, id, body.Status, body.Notes)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(order)
}

// POST /api/orders/:id/rate
func (oc *OrderController) Rate(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid order id"})
	}

	var body service.RateOrderInput
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	rating, err := oc.Orders.Rate(c.UserContext(), user, id, body)
	if err != nil {
		return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(rating)
}
