package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/metrics"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/onmeta"
	"github.com/vaultpay/backend/internal/reporting"
	"github.com/vaultpay/backend/internal/signature"
	"github.com/vaultpay/backend/internal/store"
)

const webhookProvider = "onmeta"

// releaseLockScript deletes the lock only while it still holds our token, so
// a delivery that outlived the TTL cannot drop another instance's lock.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// OrderFetcher reads an order's current state from OnMeta.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (*onmeta.Event, error)
}

type OnrampService struct {
	store    *store.Store
	ledger   *LedgerService
	onmeta   OrderFetcher
	redis    *redis.Client
	config   config.OnMetaConfig
	reporter *reporting.Reporter
	logger   *zap.Logger
	now      func() time.Time
	newToken func() string
}

// NewOnrampService wires order reconciliation. fetcher, rdb and reporter
// may be nil.
func NewOnrampService(st *store.Store, ledger *LedgerService, fetcher OrderFetcher, rdb *redis.Client,
	cfg config.OnMetaConfig, reporter *reporting.Reporter, logger *zap.Logger) *OnrampService {
	return &OnrampService{
		store:    st,
		ledger:   ledger,
		onmeta:   fetcher,
		redis:    rdb,
		config:   cfg,
		reporter: reporter,
		logger:   logger.Named("onramp"),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// WebhookAck is the body returned to OnMeta for every authenticated delivery.
type WebhookAck struct {
	Received  bool   `json:"received"`
	OrderID   string `json:"orderId,omitempty"`
	EventType string `json:"eventType,omitempty"`
}

type CreateOnrampOrderInput struct {
	OnMetaOrderID         string          `json:"orderId" validate:"required,max=128"`
	OrderType             string          `json:"orderType,omitempty" validate:"omitempty,oneof=onramp offramp"`
	BuyTokenSymbol        string          `json:"buyTokenSymbol" validate:"required,max=16"`
	BuyTokenAddress       string          `json:"buyTokenAddress,omitempty" validate:"max=128"`
	FiatCurrency          string          `json:"fiatCurrency" validate:"required,max=8"`
	FiatAmount            string          `json:"fiatAmount" validate:"required"`
	ChainID               string          `json:"chainId,omitempty" validate:"max=32"`
	PaymentMode           string          `json:"paymentMode,omitempty" validate:"max=32"`
	ReceiverWalletAddress string          `json:"receiverWalletAddress" validate:"required,max=128"`
	Metadata              models.Metadata `json:"metadata,omitempty"`
}

// ReceiveWebhook authenticates and reconciles one OnMeta delivery. Only a
// signature failure is returned as an error; anything that goes wrong after
// that is logged, reported and acknowledged so OnMeta does not redeliver
// forever.
func (s *OnrampService) ReceiveWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*WebhookAck, error) {
	if err := signature.Check([]byte(s.config.WebhookSecret), rawBody, signatureHeader); err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			s.logger.Error("webhook secret is not configured, rejecting delivery")
		} else {
			s.logger.Warn("webhook signature rejected", zap.Error(err))
		}
		metrics.WebhookEvents.WithLabelValues("", "unauthorized").Inc()
		return nil, apperr.Unauthorized("Invalid signature")
	}

	ack := &WebhookAck{Received: true}

	ev, err := onmeta.ParseEvent(rawBody)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("", "malformed").Inc()
		s.swallow("webhook payload unreadable", err, nil)
		return ack, nil
	}
	ack.OrderID = ev.OrderID.String()
	ack.EventType = string(ev.EventType)

	record := s.recordDelivery(ctx, ev)

	release, acquired := s.lockDelivery(ctx, ev)
	if !acquired {
		metrics.WebhookEvents.WithLabelValues(ack.EventType, "in_flight").Inc()
		s.logger.Info("identical delivery already in progress, acknowledging",
			zap.String("orderId", ack.OrderID), zap.String("eventType", ack.EventType))
		s.finishDelivery(ctx, record, errors.New("skipped: duplicate delivery in flight"))
		return ack, nil
	}
	defer release()

	outcome, err := s.reconcile(ctx, ev)
	if err != nil {
		outcome = "failed"
		s.swallow("webhook processing failed", err, reporting.InfoData{
			"orderId":   ack.OrderID,
			"eventType": ack.EventType,
		})
	}
	metrics.WebhookEvents.WithLabelValues(ack.EventType, outcome).Inc()
	s.finishDelivery(ctx, record, err)
	return ack, nil
}

// FindOrCreateOrder returns the stored order for ev, creating it when the
// delivery can be attributed to a user by email. A nil order with a nil
// error means the event cannot be attributed.
func (s *OnrampService) FindOrCreateOrder(ctx context.Context, ev *onmeta.Event) (*models.OnMetaOrder, error) {
	orderID := ev.OrderID.String()
	order, err := s.store.GetOrderByOnMetaID(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	email := ev.CustomerEmail()
	if email == "" {
		s.logger.Warn("order unknown and payload names no customer email", zap.String("orderId", orderID))
		return nil, nil
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("order unknown and customer email matches no user", zap.String("orderId", orderID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order = &models.OnMetaOrder{
		ID:                    uuid.NewString(),
		OnMetaOrderID:         orderID,
		UserID:                &user.ID,
		OrderType:             ev.Type(),
		Status:                string(ev.EventType),
		EventType:             string(ev.EventType),
		BuyTokenSymbol:        ev.BuyTokenSymbol.String(),
		BuyTokenAddress:       ev.BuyTokenAddress.String(),
		FiatCurrency:          ev.Currency.String(),
		FiatAmount:            ev.Fiat.String(),
		ChainID:               ev.ChainID.String(),
		PaymentMode:           ev.PaymentMode.String(),
		ReceiverWalletAddress: ev.ReceiverWalletAddress.String(),
		Metadata:              ev.Metadata(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	err = s.store.CreateOrder(ctx, order)
	if errors.Is(err, store.ErrUniqueViolation) {
		// A concurrent delivery created it first.
		return s.store.GetOrderByOnMetaID(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("order created from webhook",
		zap.String("orderId", orderID), zap.String("userId", user.ID), zap.String("eventType", order.EventType))
	return order, nil
}

// CreateOnrampOrder records an order the client has just opened with OnMeta.
func (s *OnrampService) CreateOnrampOrder(ctx context.Context, callerID string, in CreateOnrampOrderInput) (*models.OnMetaOrder, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	orderID := strings.TrimSpace(in.OnMetaOrderID)
	if orderID == "" {
		return nil, apperr.Validation("orderId is required")
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(in.FiatAmount)); err != nil {
		return nil, apperr.Validation("fiatAmount must be a decimal string")
	}
	orderType := in.OrderType
	if orderType == "" {
		orderType = models.OrderTypeOnramp
	}

	now := s.now().UTC()
	order := &models.OnMetaOrder{
		ID:                    uuid.NewString(),
		OnMetaOrderID:         orderID,
		UserID:                &callerID,
		OrderType:             orderType,
		Status:                string(onmeta.EventFiatPending),
		EventType:             string(onmeta.EventFiatPending),
		BuyTokenSymbol:        strings.ToUpper(strings.TrimSpace(in.BuyTokenSymbol)),
		BuyTokenAddress:       strings.TrimSpace(in.BuyTokenAddress),
		FiatCurrency:          strings.ToUpper(strings.TrimSpace(in.FiatCurrency)),
		FiatAmount:            strings.TrimSpace(in.FiatAmount),
		ChainID:               strings.TrimSpace(in.ChainID),
		PaymentMode:           strings.TrimSpace(in.PaymentMode),
		ReceiverWalletAddress: strings.TrimSpace(in.ReceiverWalletAddress),
		Metadata:              in.Metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	err := s.store.CreateOrder(ctx, order)
	if errors.Is(err, store.ErrUniqueViolation) {
		return nil, apperr.Conflict("Order already exists")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("order created", zap.String("orderId", orderID), zap.String("userId", callerID))
	return order, nil
}

func (s *OnrampService) GetOnrampOrder(ctx context.Context, callerID, orderID string) (*models.OnMetaOrder, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	order, err := s.store.GetOrderByOnMetaID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if order.UserID == nil || *order.UserID != callerID {
		return nil, apperr.Forbidden("You do not own this order")
	}
	return order, nil
}

func (s *OnrampService) ListUserOrders(ctx context.Context, callerID string, limit int) ([]models.OnMetaOrder, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	orders, err := s.store.ListOrdersByUser(ctx, callerID, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return orders, nil
}

// RefreshOrder pulls the order from OnMeta and applies it exactly as a
// webhook delivery would be applied.
func (s *OnrampService) RefreshOrder(ctx context.Context, callerID, orderID string) (*models.OnMetaOrder, error) {
	if _, err := s.GetOnrampOrder(ctx, callerID, orderID); err != nil {
		return nil, err
	}
	if s.onmeta == nil {
		return nil, apperr.Upstream("Order refresh is not available", nil)
	}

	ev, err := s.onmeta.FetchOrder(ctx, orderID)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("onmeta").Inc()
		s.logger.Warn("order refresh failed", zap.String("orderId", orderID), zap.Error(err))
		return nil, apperr.Upstream("OnMeta is unavailable, please retry", err)
	}
	if ev.OrderID.String() != orderID {
		return nil, apperr.Upstream("OnMeta returned a different order", nil)
	}

	outcome, err := s.reconcile(ctx, ev)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("order refreshed", zap.String("orderId", orderID),
		zap.String("eventType", string(ev.EventType)), zap.String("outcome", outcome))

	return s.GetOnrampOrder(ctx, callerID, orderID)
}

// reconcile applies ev to its order and, on completion, appends the onramp
// ledger entry in the same transaction. The returned outcome labels metrics.
func (s *OnrampService) reconcile(ctx context.Context, ev *onmeta.Event) (string, error) {
	if !ev.EventType.IsKnown() {
		s.logger.Info("ignoring unknown event type",
			zap.String("orderId", ev.OrderID.String()), zap.String("eventType", string(ev.EventType)))
		return "unknown_event", nil
	}

	order, err := s.FindOrCreateOrder(ctx, ev)
	if err != nil {
		return "", errors.Wrap(err, "find or create order")
	}
	if order == nil {
		return "unattributed", nil
	}

	if !acceptsEvent(order, ev) {
		s.logStaleEvent(order, ev)
		return "stale_event", nil
	}

	// The snapshot above may predate a concurrent event for the same order;
	// the decision is made again on the locked row.
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		locked, err := tx.LockOrder(ctx, order.OnMetaOrderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		order = locked
		if !applyEvent(order, ev, s.now().UTC()) {
			return errStaleEvent
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return errors.Wrap(err, "update order")
		}
		if ev.EventType == onmeta.EventCompleted {
			return s.recordOnrampCredit(ctx, tx, order)
		}
		return nil
	})
	if errors.Is(err, errStaleEvent) {
		s.logStaleEvent(order, ev)
		return "stale_event", nil
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("order event applied",
		zap.String("orderId", order.OnMetaOrderID), zap.String("status", order.Status))
	return "applied", nil
}

var errStaleEvent = errors.New("event arrived after terminal state")

// acceptsEvent reports whether ev may change order. Terminal orders only
// accept a repeat of the same terminal event, so replays stay idempotent and
// late non-terminal events cannot rewind a finished order.
func acceptsEvent(order *models.OnMetaOrder, ev *onmeta.Event) bool {
	current := onmeta.EventType(order.Status)
	return !current.IsTerminal() || ev.EventType == current
}

func (s *OnrampService) logStaleEvent(order *models.OnMetaOrder, ev *onmeta.Event) {
	s.logger.Info("ignoring event after terminal state",
		zap.String("orderId", order.OnMetaOrderID),
		zap.String("status", order.Status),
		zap.String("eventType", string(ev.EventType)))
}

// applyEvent sets order state from ev and reports false, leaving order
// untouched, when the order no longer accepts it.
func applyEvent(order *models.OnMetaOrder, ev *onmeta.Event, now time.Time) bool {
	if !acceptsEvent(order, ev) {
		return false
	}

	order.Status = string(ev.EventType)
	order.EventType = string(ev.EventType)
	order.UpdatedAt = now

	fill(&order.FiatAmount, ev.Fiat)
	fill(&order.FiatCurrency, ev.Currency)
	fill(&order.ChainID, ev.ChainID)
	fill(&order.ReceiverWalletAddress, ev.ReceiverWalletAddress)
	fill(&order.BuyTokenSymbol, ev.BuyTokenSymbol)
	fill(&order.BuyTokenAddress, ev.BuyTokenAddress)
	fill(&order.PaymentMode, ev.PaymentMode)

	if ev.EventType.CarriesSettlement() {
		fillPtr(&order.TransactionHash, ev.TxnHash)
		fillPtr(&order.TransferredAmount, ev.TransferredAmount)
		fillPtr(&order.ConversionRate, ev.ConversionRate)
		fillPtr(&order.Commission, ev.Commission)
	}

	switch ev.EventType {
	case onmeta.EventCompleted:
		if order.CompletedAt == nil {
			order.CompletedAt = &now
		}
	case onmeta.EventExpired:
		if order.ExpiredAt == nil {
			order.ExpiredAt = &now
		}
	}

	if meta := ev.Metadata(); len(meta) > 0 {
		if order.Metadata == nil {
			order.Metadata = models.Metadata{}
		}
		for k, v := range meta {
			order.Metadata[k] = v
		}
	}
	return true
}

func (s *OnrampService) recordOnrampCredit(ctx context.Context, tx *store.Store, order *models.OnMetaOrder) error {
	if order.UserID == nil || order.ReceiverWalletAddress == "" {
		s.logger.Warn("completed order lacks user or receiver wallet, no ledger entry",
			zap.String("orderId", order.OnMetaOrderID))
		return nil
	}
	if order.TransferredAmount == nil {
		s.logger.Warn("completed order has no transferred amount, no ledger entry",
			zap.String("orderId", order.OnMetaOrderID))
		return nil
	}
	amount, err := decimal.NewFromString(*order.TransferredAmount)
	if err != nil {
		s.logger.Warn("completed order has unreadable transferred amount, no ledger entry",
			zap.String("orderId", order.OnMetaOrderID), zap.String("transferredAmount", *order.TransferredAmount))
		return nil
	}

	wallet := order.ReceiverWalletAddress
	_, err = s.ledger.Append(ctx, tx, &models.Transaction{
		Type:        models.TxTypeOnramp,
		UserID:      order.UserID,
		ToAddress:   &wallet,
		Amount:      amount,
		Token:       order.BuyTokenSymbol,
		TxHash:      order.TransactionHash,
		ReferenceID: order.OnMetaOrderID,
		Status:      models.TxStatusConfirmed,
		Description: fmt.Sprintf("OnMeta onramp %s %s", order.FiatAmount, order.FiatCurrency),
		CreatedAt:   order.UpdatedAt,
	})
	return err
}

func (s *OnrampService) recordDelivery(ctx context.Context, ev *onmeta.Event) *models.WebhookEvent {
	record := &models.WebhookEvent{
		ID:         uuid.NewString(),
		Provider:   webhookProvider,
		OrderID:    ev.OrderID.String(),
		EventType:  string(ev.EventType),
		Payload:    ev.Raw,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.store.RecordWebhookEvent(ctx, record); err != nil {
		s.swallow("webhook delivery not recorded", err, reporting.InfoData{"orderId": record.OrderID})
		return nil
	}
	return record
}

func (s *OnrampService) finishDelivery(ctx context.Context, record *models.WebhookEvent, procErr error) {
	if record == nil {
		return
	}
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := s.store.FinishWebhookEvent(ctx, record.ID, s.now().UTC(), msg); err != nil {
		s.logger.Warn("webhook delivery outcome not recorded", zap.String("id", record.ID), zap.Error(err))
	}
}

// lockDelivery serialises identical (order, event) deliveries across
// instances. Without Redis, or when Redis fails, processing goes ahead and
// the ledger constraint keeps replays harmless.
func (s *OnrampService) lockDelivery(ctx context.Context, ev *onmeta.Event) (func(), bool) {
	noop := func() {}
	if s.redis == nil {
		return noop, true
	}
	key := fmt.Sprintf("onmeta:webhook:%s:%s", ev.OrderID, ev.EventType)
	ttl := s.config.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	token := s.newToken()
	ok, err := s.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		s.logger.Warn("webhook lock unavailable, processing without it", zap.Error(err))
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		released, err := s.redis.Eval(context.Background(), releaseLockScript, []string{key}, token).Int64()
		if err != nil {
			s.logger.Warn("webhook lock not released", zap.String("key", key), zap.Error(err))
			return
		}
		if released == 0 {
			s.logger.Warn("webhook lock expired during processing", zap.String("key", key), zap.Duration("ttl", ttl))
		}
	}, true
}

func (s *OnrampService) swallow(msg string, err error, data reporting.InfoData) {
	fields := []zap.Field{zap.Error(err)}
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Error(msg, fields...)
	s.reporter.Error(msg, err, data)
}

func fill(dst *string, v onmeta.Text) {
	if v != "" {
		*dst = v.String()
	}
}

func fillPtr(dst **string, v onmeta.Text) {
	if v != "" {
		*dst = v.Ptr()
	}
}
