package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CallbackKind string

const (
	CallbackKindReturn  CallbackKind = "return"  // payer's browser coming back from the gateway
	CallbackKindWebhook CallbackKind = "webhook" // gateway's asynchronous server-to-server notice
	CallbackKindVerify  CallbackKind = "verify"  // internally triggered verification (reconciler)
	CallbackKindError   CallbackKind = "error"   // gateway error notice
)

// CallbackRecord stores one inbound notification verbatim. Rows are immutable
// except for the processed flag and the response we sent back; a payment may
// accumulate many of them (browser return and webhook are recorded separately).
type CallbackRecord struct {
	ID         string // UUID
	PaymentID  string
	Kind       CallbackKind
	RawPayload json.RawMessage // as received, before any parsing
	RemoteAddr string
	Processed  bool
	Response   string // free text echoed to the sender
	CreatedAt  time.Time
}

func NewCallbackRecord(paymentID string, kind CallbackKind, raw json.RawMessage, remoteAddr string) *CallbackRecord {
	return &CallbackRecord{
		ID:         uuid.NewString(),
		PaymentID:  paymentID,
		Kind:       kind,
		RawPayload: raw,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
	}
}
