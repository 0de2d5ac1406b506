package chat

import (
	"strings"

	"github.com/makerlink/chat/internal/wire"
)

// kindTokens is the canonical mapping from raw wire discriminator tokens to
// the closed Kind set. The backend has accumulated several spellings per
// kind; all inbound paths (history and live broadcast) resolve through this
// one table.
var kindTokens = map[string]Kind{
	"text":    KindUser,
	"user":    KindUser,
	"message": KindUser,

	"image": KindImage,
	"photo": KindImage,

	"request_accepted": KindSystemAccepted,
	"accepted":         KindSystemAccepted,

	"payment":      KindPayment,
	"payment_made": KindPayment,

	"payment_request": KindActionPayment,
	"make_payment":    KindActionPayment,

	"delivery_details_request": KindActionDeliveryMeasurement,
	"request_delivery_details": KindActionDeliveryMeasurement,

	"delivery_and_measurements": KindDeliveryMeasurementCard,
	"delivery_details":          KindDeliveryMeasurementCard,

	"order_completed":  KindActionCompleted,
	"confirm_complete": KindActionCompleted,

	"escrow_payment": KindEscrowPayment,
	"escrow_funded":  KindEscrowPayment,

	"escrow_release":  KindEscrowRelease,
	"escrow_released": KindEscrowRelease,
}

// contentHints are the last-resort, low-confidence content-substring rules.
// They exist only for legacy records that carry no discriminator at all and
// must never shadow an explicit token.
var contentHints = []struct {
	substrings []string
	kind       Kind
}{
	{[]string{"delivery", "measurement"}, KindDeliveryMeasurementCard},
	{[]string{"escrow", "release"}, KindEscrowRelease},
	{[]string{"escrow"}, KindEscrowPayment},
	{[]string{"payment"}, KindPayment},
}

// wireTokens is the outbound spelling per kind. One canonical token per
// kind; inbound resolution accepts the historical aliases above.
var wireTokens = map[Kind]string{
	KindUser:                      "text",
	KindImage:                     "image",
	KindSystemAccepted:            "request_accepted",
	KindPayment:                   "payment",
	KindActionPayment:             "payment_request",
	KindActionDeliveryMeasurement: "delivery_details_request",
	KindDeliveryMeasurementCard:   "delivery_and_measurements",
	KindActionCompleted:           "order_completed",
	KindEscrowPayment:             "escrow_payment",
	KindEscrowRelease:             "escrow_release",
}

// WireToken returns the canonical outbound discriminator for a kind.
func WireToken(kind Kind) string {
	if token, ok := wireTokens[kind]; ok {
		return token
	}
	return "text"
}

// ResolveKind maps a raw message onto the closed Kind set.
//
// Discriminator tokens are evaluated in wire order (type, messageType, kind,
// actionType); the first known token wins. When no token matches, content
// substring hints are consulted as a degraded-confidence fallback. Anything
// still unresolved is a forward-compatible KindUser.
//
// exact is false when the kind came from a content hint or the default.
func ResolveKind(raw wire.RawMessage) (kind Kind, exact bool) {
	for _, token := range raw.TypeTokens() {
		if k, ok := kindTokens[strings.ToLower(strings.TrimSpace(token))]; ok {
			return k, true
		}
	}

	if content := strings.ToLower(raw.Content()); content != "" {
		for _, hint := range contentHints {
			matched := true
			for _, sub := range hint.substrings {
				if !strings.Contains(content, sub) {
					matched = false
					break
				}
			}
			if matched {
				return hint.kind, false
			}
		}
	}

	return KindUser, false
}
