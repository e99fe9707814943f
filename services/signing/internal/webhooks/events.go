package webhooks

import (
	"strings"

	"github.com/altovisual/artist-management/services/signing/internal/store"
)

// providerEvents maps the signing provider's event vocabulary, across the
// payload versions it has shipped, onto signature statuses.
var providerEvents = map[string]store.SignatureStatus{
	"completed":                    store.SignatureSigned,
	"document_completed":           store.SignatureSigned,
	"signed":                       store.SignatureSigned,
	"signature_request_signed":     store.SignatureSigned,
	"signature_request_all_signed": store.SignatureSigned,
	"envelope.completed":           store.SignatureSigned,

	"sent":                   store.SignatureSent,
	"document_sent":          store.SignatureSent,
	"signature_request_sent": store.SignatureSent,
	"envelope.sent":          store.SignatureSent,

	"expired":                   store.SignatureExpired,
	"document_expired":          store.SignatureExpired,
	"signature_request_expired": store.SignatureExpired,
	"envelope.expired":          store.SignatureExpired,
}

// MapEvent returns the status an event code moves a signature to. ok is false
// for codes this service does not act on.
func MapEvent(code string) (store.SignatureStatus, bool) {
	st, ok := providerEvents[strings.ToLower(strings.TrimSpace(code))]
	return st, ok
}

// transitionSources lists, per target status, the statuses a signature may be
// in for the transition to apply. signed and expired are terminal.
var transitionSources = map[store.SignatureStatus][]store.SignatureStatus{
	store.SignatureSent:    {store.SignaturePending},
	store.SignatureSigned:  {store.SignaturePending, store.SignatureSent},
	store.SignatureExpired: {store.SignaturePending, store.SignatureSent},
}

func AllowedFrom(target store.SignatureStatus) []store.SignatureStatus {
	return transitionSources[target]
}

// CanTransition reports whether a signature in from may move to to.
func CanTransition(from, to store.SignatureStatus) bool {
	for _, s := range transitionSources[to] {
		if s == from {
			return true
		}
	}
	return false
}
