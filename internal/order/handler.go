package order

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/pet-shop-payment/internal/auth"
	"github.com/wichananm65/pet-shop-payment/internal/cart"
)

// Handler exposes checkout, the gateway return callback and the staff
// status overrides over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterPublicRoutes registers the endpoints the gateway calls back
// into; they must stay reachable without a token.
func (h *Handler) RegisterPublicRoutes(app *fiber.App) {
	app.Get("/api/v1/payment/return", h.gatewayReturn)
}

// RegisterProtectedRoutes registers checkout and read endpoints. The JWT
// middleware in front of these allows tokenless checkout for anonymous
// buyers; the handlers fall back to the anonId in the payload.
func (h *Handler) RegisterProtectedRoutes(app *fiber.App) {
	app.Post("/api/v1/orders", h.createCodOrder)
	app.Post("/api/v1/orders/gateway", h.createGatewayOrder)
	app.Get("/api/v1/orders", h.listOrders)
	app.Get("/api/v1/orders/:id", h.getOrder)
}

// RegisterAdminRoutes registers the staff-only status overrides.
func (h *Handler) RegisterAdminRoutes(app *fiber.App) {
	app.Patch("/api/v1/admin/orders/:id/order-status", h.patchOrderStatus)
	app.Patch("/api/v1/admin/orders/:id/payment-status", h.patchPaymentStatus)
}

type checkoutRequest struct {
	AnonID  string `json:"anonId,omitempty"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
	Locale  string `json:"locale,omitempty"`
}

func (h *Handler) checkoutFromCtx(c *fiber.Ctx) (CheckoutRequest, error) {
	payload := new(checkoutRequest)
	if err := c.BodyParser(payload); err != nil {
		return CheckoutRequest{}, &ValidationError{Reason: err.Error()}
	}

	req := CheckoutRequest{
		AnonID: payload.AnonID,
		Contact: Contact{
			Name:    payload.Name,
			Phone:   payload.Phone,
			Email:   payload.Email,
			Address: payload.Address,
		},
		Locale:   payload.Locale,
		ClientIP: c.IP(),
	}
	if userID, err := auth.UserIDFromCtx(c); err == nil {
		req.UserID = userID
		req.AnonID = ""
	} else if payload.AnonID == "" {
		return CheckoutRequest{}, fiber.ErrUnauthorized
	}
	return req, nil
}

func (h *Handler) createCodOrder(c *fiber.Ctx) error {
	req, err := h.checkoutFromCtx(c)
	if err != nil {
		return respondError(c, err)
	}

	ord, err := h.service.CreateCodOrder(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ord)
}

func (h *Handler) createGatewayOrder(c *fiber.Ctx) error {
	req, err := h.checkoutFromCtx(c)
	if err != nil {
		return respondError(c, err)
	}

	ord, payURL, err := h.service.CreateGatewayOrder(req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":      ord,
		"paymentUrl": payURL,
	})
}

// gatewayReturn is the asynchronous return callback. Status codes follow
// the reject taxonomy: 400 for bad signature or amount mismatch, 404 for
// an unknown order, 200 otherwise (including the idempotent replay).
func (h *Handler) gatewayReturn(c *fiber.Ctx) error {
	params := c.Queries()
	raw := string(c.Request().URI().QueryString())

	res, err := h.service.HandleGatewayReturn(params, raw)
	if err != nil {
		return respondError(c, err)
	}

	message := "payment failed"
	switch {
	case res.AlreadyPaid:
		message = "already paid"
	case res.Paid:
		message = "payment recorded"
	}
	return c.JSON(fiber.Map{"message": message, "order": res.Order})
}

func (h *Handler) listOrders(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	orders, err := h.service.ListOrders(cart.Owner{UserID: userID})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(orders)
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := auth.UserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}

	ord, err := h.service.GetOrder(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if ord.UserID != userID && !auth.IsStaff(c) {
		// don't leak order existence to other accounts
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order not found"})
	}
	return c.JSON(ord)
}

type statusPatchRequest struct {
	OrderStatus   string `json:"orderStatus,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

func (h *Handler) patchOrderStatus(c *fiber.Ctx) error {
	actor, ok := staffActor(c)
	if !ok {
		return respondNotStaff(c)
	}

	payload := new(statusPatchRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.OrderStatus == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "orderStatus is required"})
	}

	ord, err := h.service.OverrideOrderStatus(c.Params("id"), payload.OrderStatus, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"orderID": ord.OrderID, "orderStatus": ord.OrderStatus})
}

func (h *Handler) patchPaymentStatus(c *fiber.Ctx) error {
	actor, ok := staffActor(c)
	if !ok {
		return respondNotStaff(c)
	}

	payload := new(statusPatchRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	}
	if payload.PaymentStatus == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "paymentStatus is required"})
	}

	ord, err := h.service.OverridePaymentStatus(c.Params("id"), payload.PaymentStatus, actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"orderID": ord.OrderID, "paymentStatus": ord.PaymentStatus})
}

// staffActor authorizes the admin surface and names the actor for the
// audit trail.
func staffActor(c *fiber.Ctx) (string, bool) {
	userID, err := auth.UserIDFromCtx(c)
	if err != nil || !auth.IsStaff(c) {
		return "", false
	}
	return "staff:" + strconv.Itoa(userID), true
}

func respondNotStaff(c *fiber.Ctx) error {
	if _, err := auth.UserIDFromCtx(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "staff only"})
}

func respondError(c *fiber.Ctx, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": verr.Reason})
	case errors.Is(err, ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
	case errors.Is(err, ErrBadSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid signature"})
	case errors.Is(err, ErrAmountMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "amount mismatch"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "order not found"})
	case errors.Is(err, fiber.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
	}
}
