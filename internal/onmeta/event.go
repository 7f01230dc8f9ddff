// Package onmeta holds the OnMeta order event vocabulary and the API client
// used to refresh order status.
package onmeta

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"

	"github.com/vaultpay/backend/internal/models"
)

type EventType string

const (
	EventFiatPending   EventType = "fiatPending"
	EventOrderReceived EventType = "orderReceived"
	EventInProgress    EventType = "InProgress"
	EventFiatReceived  EventType = "fiatReceived"
	EventTransferred   EventType = "transferred"
	EventCompleted     EventType = "completed"
	EventExpired       EventType = "expired"
)

var knownEvents = map[EventType]bool{
	EventFiatPending:   true,
	EventOrderReceived: true,
	EventInProgress:    true,
	EventFiatReceived:  true,
	EventTransferred:   true,
	EventCompleted:     true,
	EventExpired:       true,
}

// IsKnown is false for event types OnMeta added after this vocabulary was
// written. Those are recorded and otherwise ignored.
func (e EventType) IsKnown() bool { return knownEvents[e] }

func (e EventType) IsTerminal() bool {
	return e == EventCompleted || e == EventExpired
}

// CarriesSettlement reports whether the event reports transfer details.
func (e EventType) CarriesSettlement() bool {
	return e == EventTransferred || e == EventCompleted
}

var (
	ErrMissingOrderID   = errors.New("payload has no orderId")
	ErrMissingEventType = errors.New("payload has no eventType")
)

// Text accepts a JSON string or number. Other JSON values decode to "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		*t = Text(b)
	default:
		*t = ""
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Ptr returns nil for an empty value.
func (t Text) Ptr() *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// Event is one order event as delivered by webhook or returned by the order
// status API. Raw keeps the exact payload for unknown event types.
type Event struct {
	OrderID               Text            `json:"orderId"`
	EventType             EventType       `json:"eventType"`
	Status                Text            `json:"status"`
	Fiat                  Text            `json:"fiat"`
	Currency              Text            `json:"currency"`
	ChainID               Text            `json:"chainId"`
	ReceiverWalletAddress Text            `json:"receiverWalletAddress"`
	BuyTokenSymbol        Text            `json:"buyTokenSymbol"`
	BuyTokenAddress       Text            `json:"buyTokenAddress"`
	PaymentMode           Text            `json:"paymentMode"`
	TxnHash               Text            `json:"txnHash"`
	TransferredAmount     Text            `json:"transferredAmount"`
	TransferredAmountWei  Text            `json:"transferredAmountWei"`
	ConversionRate        Text            `json:"conversionRate"`
	Commission            Text            `json:"commission"`
	OrderType             Text            `json:"orderType"`
	Customer              json.RawMessage `json:"customer"`
	MetaData              json.RawMessage `json:"metaData"`
	CreatedAt             Text            `json:"createdAt"`

	Raw json.RawMessage `json:"-"`
}

// ParseEvent decodes raw. orderId and eventType are required; everything
// else is optional.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errors.Wrap(err, "decode onmeta event")
	}
	if ev.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	ev.EventType = EventType(strings.TrimSpace(string(ev.EventType)))
	if ev.EventType == "" {
		return nil, ErrMissingEventType
	}
	ev.Raw = append(json.RawMessage(nil), raw...)
	return &ev, nil
}

// Metadata decodes metaData, which OnMeta sends either as an object or as a
// JSON-encoded string.
func (e *Event) Metadata() models.Metadata {
	return decodeObject(e.MetaData)
}

// CustomerEmail finds the email used to attribute the order to a user.
func (e *Event) CustomerEmail() string {
	meta := e.Metadata()
	if email := meta.String("email", "userEmail", "customerEmail"); email != "" {
		return email
	}
	if len(e.Customer) > 0 && e.Customer[0] == '"' {
		var s string
		if json.Unmarshal(e.Customer, &s) == nil && strings.Contains(s, "@") {
			return strings.TrimSpace(s)
		}
	}
	return decodeObject(e.Customer).String("email")
}

// Type returns the order type, defaulting to onramp.
func (e *Event) Type() string {
	if strings.EqualFold(e.OrderType.String(), models.OrderTypeOfframp) {
		return models.OrderTypeOfframp
	}
	return models.OrderTypeOnramp
}

func decodeObject(raw json.RawMessage) models.Metadata {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		raw = []byte(inner)
	}
	var m models.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
