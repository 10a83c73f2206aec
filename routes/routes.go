package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/henryq1230/easydeals-backend/controller"
	"github.com/henryq1230/easydeals-backend/middleware"
	"github.com/henryq1230/easydeals-backend/model"
	"github.com/henryq1230/easydeals-backend/service"
)

func RegisterOrderRoutes(app *fiber.App, orders *service.OrderService, authMiddleware fiber.Handler) {
	oc := controller.NewOrderController(orders)

	api := app.Group("/api")
	o := api.Group("/orders")
	o.Post("/", authMiddleware, oc.Create)
	o.Get("/", authMiddleware, oc.List)
	o.Get("/:id", authMiddleware, oc.Get)
	o.Post("/:id/status", authMiddleware, oc.UpdateStatus)
	o.Post("/:id/rate", authMiddleware, oc.Rate)
}

func RegisterPaymentRoutes(app *fiber.App, payments *service.PaymentService, authMiddleware fiber.Handler) {
	pc := controller.NewPaymentController(payments)

	api := app.Group("/api")
	p := api.Group("/payments")

	// Webhook is signature-authenticated, not JWT-authenticated.
	p.Post("/gateway/webhook", pc.Webhook)

	p.Post("/", authMiddleware, pc.Create)
	p.Get("/", authMiddleware, pc.List)
	p.Get("/stats", authMiddleware, pc.Stats)
	p.Get("/:id", authMiddleware, pc.Get)
	p.Post("/:id/refund", authMiddleware, pc.Refund)
	p.Post("/:id/sync", authMiddleware, middleware.RoleRequired(model.UserTypeAdmin), pc.Sync)
}
