// Package comms provides the inter-agent message bus.
package comms

import (
	"encoding/json"
	"fmt"

	"github.com/GoCodeAlone/bookstore/world"
)

// Kind identifies the kind of inter-agent message. The values are the stable wire
// vocabulary used in the message log and exports.
type Kind string

const (
	KindPurchaseRequest   Kind = "PurchaseRequest"
	KindPurchaseCompleted Kind = "PurchaseCompleted"
	KindPurchaseRejected  Kind = "PurchaseRejected"
	KindRestockRequest    Kind = "RestockRequest"
	KindRestockCompleted  Kind = "RestockCompleted"
	KindOrderCreated      Kind = "OrderCreated"
	KindSystemAlert       Kind = "SystemAlert"
)

// Kinds lists every message kind.
var Kinds = []Kind{
	KindPurchaseRequest,
	KindPurchaseCompleted,
	KindPurchaseRejected,
	KindRestockRequest,
	KindRestockCompleted,
	KindOrderCreated,
	KindSystemAlert,
}

// Valid reports whether k is part of the vocabulary.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// AlertType qualifies a SystemAlert.
type AlertType string

const (
	AlertSale                AlertType = "sale"
	AlertPromotionSuggestion AlertType = "promotion_suggestion"
	AlertNewArrivals         AlertType = "new_arrivals"
	AlertMaintenance         AlertType = "maintenance"
)

// Payload is the kind-specific body of a message.
type Payload interface {
	Kind() Kind
}

type PurchaseRequest struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	BookID     string `json:"book_id"`
	Quantity   int    `json:"quantity"`
}

type PurchaseCompleted struct {
	OrderID  string  `json:"order_id"`
	BookID   string  `json:"book_id"`
	Quantity int     `json:"quantity"`
	Total    float64 `json:"total"`
}

type PurchaseRejected struct {
	OrderID  string             `json:"order_id"`
	BookID   string             `json:"book_id"`
	Quantity int                `json:"quantity"`
	Reason   world.RejectReason `json:"reason"`
}

// RestockRequest reports a book under its reorder level.
type RestockRequest struct {
	BookID       string `json:"book_id"`
	Quantity     int    `json:"quantity"`
	ReorderLevel int    `json:"reorder_level"`
}

// RestockCompleted reports units added to a book's stock.
type RestockCompleted struct {
	BookID      string `json:"book_id"`
	Added       int    `json:"added"`
	NewQuantity int    `json:"new_quantity"`
}

type OrderCreated struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	BookID     string `json:"book_id"`
	Quantity   int    `json:"quantity"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

type SystemAlert struct {
	Type   AlertType `json:"type"`
	BookID string    `json:"book_id,omitempty"`
	Text   string    `json:"text,omitempty"`
}

func (PurchaseRequest) Kind() Kind   { return KindPurchaseRequest }
func (PurchaseCompleted) Kind() Kind { return KindPurchaseCompleted }
func (PurchaseRejected) Kind() Kind  { return KindPurchaseRejected }
func (RestockRequest) Kind() Kind    { return KindRestockRequest }
func (RestockCompleted) Kind() Kind  { return KindRestockCompleted }
func (OrderCreated) Kind() Kind      { return KindOrderCreated }
func (SystemAlert) Kind() Kind       { return KindSystemAlert }

// Message is a communication unit between agents. Seq and Step are assigned by the
// bus on publish; a Message is never modified after that.
type Message struct {
	Seq       uint64  `json:"seq"`
	Step      int     `json:"step"`
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient,omitempty"` // empty for broadcast
	Kind      Kind    `json:"kind"`
	Payload   Payload `json:"payload"`
}

// Broadcast reports whether the message has no single recipient.
func (m Message) Broadcast() bool { return m.Recipient == "" }

// New builds an unpublished message whose kind is taken from the payload.
func New(sender, recipient string, p Payload) Message {
	return Message{Sender: sender, Recipient: recipient, Kind: p.Kind(), Payload: p}
}

// UnmarshalJSON decodes the payload into the struct matching Kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Seq       uint64          `json:"seq"`
		Step      int             `json:"step"`
		Sender    string          `json:"sender"`
		Recipient string          `json:"recipient"`
		Kind      Kind            `json:"kind"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := decodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*m = Message{Seq: raw.Seq, Step: raw.Step, Sender: raw.Sender, Recipient: raw.Recipient, Kind: raw.Kind, Payload: p}
	return nil
}

func decodePayload(k Kind, data json.RawMessage) (Payload, error) {
	var p Payload
	switch k {
	case KindPurchaseRequest:
		p = &PurchaseRequest{}
	case KindPurchaseCompleted:
		p = &PurchaseCompleted{}
	case KindPurchaseRejected:
		p = &PurchaseRejected{}
	case KindRestockRequest:
		p = &RestockRequest{}
	case KindRestockCompleted:
		p = &RestockCompleted{}
	case KindOrderCreated:
		p = &OrderCreated{}
	case KindSystemAlert:
		p = &SystemAlert{}
	default:
		return nil, fmt.Errorf("decode payload: %w %q", ErrUnknownKind, k)
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", k, err)
		}
	}
	return deref(p), nil
}

// deref turns the decoding pointer back into the value form agents switch on.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *PurchaseRequest:
		return *v
	case *PurchaseCompleted:
		return *v
	case *PurchaseRejected:
		return *v
	case *RestockRequest:
		return *v
	case *RestockCompleted:
		return *v
	case *OrderCreated:
		return *v
	case *SystemAlert:
		return *v
	}
	return p
}
