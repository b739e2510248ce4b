package order

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wichananm65/pet-shop-payment/internal/audit"
	"github.com/wichananm65/pet-shop-payment/internal/cart"
	"github.com/wichananm65/pet-shop-payment/internal/gateway"
)

// GatewaySettings carries the merchant-side configuration for building
// payment redirects.
type GatewaySettings struct {
	TmnCode   string
	PayURL    string
	ReturnURL string
	Locale    string
}

// Service implements the order lifecycle: checkout (COD and gateway),
// the gateway return state machine, and the administrative overrides.
// It is a function of (request, repository state, clock); everything
// else is injected.
type Service struct {
	repo  Repository
	carts cart.Coordinator
	codec *gateway.Codec
	gw    GatewaySettings
	loc   *time.Location
	aud   audit.Logger
	now   func() time.Time
}

func NewService(repo Repository, carts cart.Coordinator, codec *gateway.Codec, gw GatewaySettings, loc *time.Location, aud audit.Logger) *Service {
	return &Service{
		repo:  repo,
		carts: carts,
		codec: codec,
		gw:    gw,
		loc:   loc,
		aud:   aud,
		now:   time.Now,
	}
}

// WithClock replaces the service clock. Tests use it to pin time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CheckoutRequest is a validated checkout submission. Exactly one of
// UserID/AnonID identifies the buyer.
type CheckoutRequest struct {
	UserID   int
	AnonID   string
	Contact  Contact
	Locale   string
	ClientIP string
}

func (r CheckoutRequest) owner() cart.Owner {
	return cart.Owner{UserID: r.UserID, AnonID: r.AnonID}
}

func (r CheckoutRequest) validate() error {
	if !r.owner().Valid() {
		return &ValidationError{Reason: "exactly one of user id or anonymous id must identify the buyer"}
	}
	if r.Contact.Name == "" {
		return &ValidationError{Reason: "contact name is required"}
	}
	if r.Contact.Phone == "" {
		return &ValidationError{Reason: "contact phone is required"}
	}
	if r.Contact.Address == "" {
		return &ValidationError{Reason: "contact address is required"}
	}
	return nil
}

// CreateCodOrder persists a cash-on-delivery order: no online payment
// step, so it is queued for fulfillment immediately.
func (s *Service) CreateCodOrder(req CheckoutRequest) (Order, error) {
	ord, err := s.buildOrder(req, StatusPending, MethodCOD)
	if err != nil {
		return Order{}, err
	}
	return s.repo.Create(ord)
}

// CreateGatewayOrder persists an order awaiting online payment and
// returns the signed redirect URL for the gateway.
func (s *Service) CreateGatewayOrder(req CheckoutRequest) (Order, string, error) {
	ord, err := s.buildOrder(req, StatusAwaitPay, MethodGateway)
	if err != nil {
		return Order{}, "", err
	}
	ord, err = s.repo.Create(ord)
	if err != nil {
		return Order{}, "", err
	}

	locale := req.Locale
	if locale == "" {
		locale = s.gw.Locale
	}
	params := map[string]string{
		gateway.ParamVersion:    "2.1.0",
		gateway.ParamCommand:    "pay",
		gateway.ParamTmnCode:    s.gw.TmnCode,
		gateway.ParamAmount:     strconv.FormatInt(minorUnits(ord.TotalAmount), 10),
		gateway.ParamCurrCode:   "VND",
		gateway.ParamTxnRef:     ord.OrderID,
		gateway.ParamOrderInfo:  "Order " + ord.OrderID,
		gateway.ParamOrderType:  "other",
		gateway.ParamLocale:     locale,
		gateway.ParamIPAddr:     req.ClientIP,
		gateway.ParamReturnURL:  s.gw.ReturnURL,
		gateway.ParamCreateDate: gateway.FormatPayDate(s.now(), s.loc),
	}
	return ord, s.codec.BuildPaymentURL(s.gw.PayURL, params), nil
}

// buildOrder snapshots the buyer's open cart into a new order. Nothing
// is persisted when validation fails.
func (s *Service) buildOrder(req CheckoutRequest, status OrderStatus, method string) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}

	ct, err := s.carts.FindOpen(req.owner())
	if err == cart.ErrNoOpenCart {
		return Order{}, &ValidationError{Reason: "no open cart to order from"}
	}
	if err != nil {
		return Order{}, err
	}
	if len(ct.Items) == 0 {
		return Order{}, &ValidationError{Reason: "cart is empty"}
	}

	total := decimal.Zero
	items := make([]Item, 0, len(ct.Items))
	for _, it := range ct.Items {
		if it.Quantity <= 0 {
			return Order{}, &ValidationError{Reason: "cart item quantity must be positive"}
		}
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	now := s.now().UTC().Format(time.RFC3339)
	return Order{
		OrderID:       uuid.New().String(),
		UserID:        req.UserID,
		AnonID:        req.AnonID,
		Contact:       req.Contact,
		TotalAmount:   total.Round(2),
		OrderStatus:   status,
		PaymentMethod: method,
		PaymentStatus: PaymentPending,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ReturnResult is the outcome of one gateway return delivery.
type ReturnResult struct {
	Order Order `json:"order"`
	// Paid reports that this delivery performed the Paid transition.
	Paid bool `json:"-"`
	// AlreadyPaid reports a replayed delivery against a Paid order;
	// no side effects were applied.
	AlreadyPaid bool `json:"-"`
}

// HandleGatewayReturn processes one inbound return callback, in strict
// order: verify signature, look up the order, idempotency guard, amount
// reconciliation, then branch on the response code and commit. Every
// reject leaves the order untouched and is audited with the raw payload.
func (s *Service) HandleGatewayReturn(params map[string]string, rawPayload string) (ReturnResult, error) {
	ref := params[gateway.ParamTxnRef]

	if !s.codec.Verify(params, params[gateway.ParamSecureHash]) {
		s.aud.Record(audit.Entry{
			Kind: audit.KindSecurity, OrderID: ref, Actor: "gateway",
			Detail: "signature verification failed", Raw: rawPayload,
		})
		return ReturnResult{}, ErrBadSignature
	}

	ord, err := s.repo.GetByID(ref)
	if err != nil {
		return ReturnResult{}, err
	}

	if ord.PaymentStatus == PaymentPaid {
		return ReturnResult{Order: ord, AlreadyPaid: true}, nil
	}

	got, err := strconv.ParseInt(params[gateway.ParamAmount], 10, 64)
	if err != nil || got != minorUnits(ord.TotalAmount) {
		s.aud.Record(audit.Entry{
			Kind: audit.KindReconcile, OrderID: ord.OrderID, Actor: "gateway",
			Detail: fmt.Sprintf("amount mismatch: gateway %q, order total %s", params[gateway.ParamAmount], ord.TotalAmount.StringFixed(2)),
			Raw:    rawPayload,
		})
		return ReturnResult{}, ErrAmountMismatch
	}

	now := s.now()
	updatedAt := now.UTC().Format(time.RFC3339)
	code := params[gateway.ParamResponseCode]

	if code != gateway.CodeSuccess {
		ord, did, err := s.repo.MarkFailed(ord.OrderID, updatedAt)
		if err != nil {
			return ReturnResult{}, err
		}
		if did {
			s.aud.Record(audit.Entry{
				Kind: audit.KindGateway, OrderID: ord.OrderID, Actor: "gateway",
				Detail: fmt.Sprintf("payment failed: responseCode=%s, order cancelled", code),
			})
		}
		return ReturnResult{Order: ord}, nil
	}

	paidAt := gateway.ParsePayDate(params[gateway.ParamPayDate], s.loc, now)
	method := MethodGateway
	if bank := params[gateway.ParamBankCode]; bank != "" {
		method = MethodGateway + "/" + bank
	}

	ord, did, err := s.repo.MarkPaid(ord.OrderID, params[gateway.ParamTransactionNo], method, paidAt.Format(time.RFC3339), updatedAt)
	if err != nil {
		return ReturnResult{}, err
	}
	if !did {
		// lost the race against a concurrent delivery; the order may have
		// settled as Paid or Failed, report whichever won
		return ReturnResult{Order: ord, AlreadyPaid: ord.PaymentStatus == PaymentPaid}, nil
	}

	s.aud.Record(audit.Entry{
		Kind: audit.KindGateway, OrderID: ord.OrderID, Actor: "gateway",
		Detail: fmt.Sprintf("payment recorded: txn=%s method=%s", ord.TransactionID, ord.PaymentMethod),
	})
	return ReturnResult{Order: ord, Paid: true}, nil
}

// OverrideOrderStatus is the staff override for orderStatus. It bypasses
// the gateway state machine on purpose and is audited as administrative.
func (s *Service) OverrideOrderStatus(id, value, actor string) (Order, error) {
	status, err := ParseOrderStatus(value)
	if err != nil {
		return Order{}, err
	}
	ord, err := s.repo.SetOrderStatus(id, status, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return Order{}, err
	}
	s.aud.Record(audit.Entry{
		Kind: audit.KindAdmin, OrderID: ord.OrderID, Actor: actor,
		Detail: fmt.Sprintf("orderStatus set to %s", status),
	})
	return ord, nil
}

// OverridePaymentStatus is the staff override for paymentStatus.
func (s *Service) OverridePaymentStatus(id, value, actor string) (Order, error) {
	status, err := ParsePaymentStatus(value)
	if err != nil {
		return Order{}, err
	}
	ord, err := s.repo.SetPaymentStatus(id, status, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return Order{}, err
	}
	s.aud.Record(audit.Entry{
		Kind: audit.KindAdmin, OrderID: ord.OrderID, Actor: actor,
		Detail: fmt.Sprintf("paymentStatus set to %s", status),
	})
	return ord, nil
}

func (s *Service) GetOrder(id string) (Order, error) {
	return s.repo.GetByID(id)
}

func (s *Service) ListOrders(owner cart.Owner) ([]Order, error) {
	return s.repo.ListByOwner(owner)
}

// minorUnits scales a two-fractional-digit amount to the gateway's
// integer subunit representation (x100).
func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}
