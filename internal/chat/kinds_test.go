package chat

import (
	"testing"

	"github.com/makerlink/chat/internal/wire"
)

func TestResolveKind_TokenTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		raw   wire.RawMessage
		want  Kind
		exact bool
	}{
		{"text", wire.RawMessage{"type": "text"}, KindUser, true},
		{"image", wire.RawMessage{"type": "image"}, KindImage, true},
		{"accepted via messageType", wire.RawMessage{"messageType": "request_accepted"}, KindSystemAccepted, true},
		{"payment", wire.RawMessage{"type": "payment"}, KindPayment, true},
		{"payment action via actionType", wire.RawMessage{"actionType": "make_payment"}, KindActionPayment, true},
		{"delivery request", wire.RawMessage{"kind": "delivery_details_request"}, KindActionDeliveryMeasurement, true},
		{"delivery card", wire.RawMessage{"type": "delivery_and_measurements"}, KindDeliveryMeasurementCard, true},
		{"completed", wire.RawMessage{"type": "order_completed"}, KindActionCompleted, true},
		{"escrow payment", wire.RawMessage{"type": "escrow_payment"}, KindEscrowPayment, true},
		{"escrow release", wire.RawMessage{"type": "escrow_release"}, KindEscrowRelease, true},
		{"uppercase token", wire.RawMessage{"type": "IMAGE"}, KindImage, true},
		{"unknown token defaults to user", wire.RawMessage{"type": "hologram"}, KindUser, false},
		{"no discriminator defaults to user", wire.RawMessage{"content": "hello there"}, KindUser, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, exact := ResolveKind(tc.raw)
			if got != tc.want || exact != tc.exact {
				t.Fatalf("ResolveKind()=%q/%v, want %q/%v", got, exact, tc.want, tc.exact)
			}
		})
	}
}

func TestResolveKind_FirstTokenWins(t *testing.T) {
	t.Parallel()

	// `type` is evaluated before `actionType`.
	raw := wire.RawMessage{"type": "text", "actionType": "make_payment"}
	got, exact := ResolveKind(raw)
	if got != KindUser || !exact {
		t.Fatalf("ResolveKind()=%q/%v, want user/true", got, exact)
	}
}

func TestResolveKind_ContentHintsAreLastResort(t *testing.T) {
	t.Parallel()

	// Explicit token shadows the content hint.
	raw := wire.RawMessage{"type": "text", "content": "escrow release confirmed"}
	if got, _ := ResolveKind(raw); got != KindUser {
		t.Fatalf("ResolveKind()=%q, want user", got)
	}

	// With no token, the hint applies at degraded confidence.
	raw = wire.RawMessage{"content": "delivery and measurement details submitted"}
	got, exact := ResolveKind(raw)
	if got != KindDeliveryMeasurementCard || exact {
		t.Fatalf("ResolveKind()=%q/%v, want deliveryMeasurement.card/false", got, exact)
	}
}
