package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayload_Overlay(t *testing.T) {
	t.Parallel()

	base := Payload{FieldText: "hi", FieldAvatarURL: "me.png"}
	out := base.Overlay(Payload{FieldText: "hello", FieldAvatarURL: "", FieldImageURL: nil})

	require.Equal(t, "hello", out.String(FieldText))
	// Empty strings and nils do not erase known fields.
	require.Equal(t, "me.png", out.String(FieldAvatarURL))
	_, ok := out[FieldImageURL]
	require.False(t, ok)

	// The receiver is untouched.
	require.Equal(t, "hi", base.String(FieldText))

	var empty Payload
	require.Equal(t, "x", empty.Overlay(Payload{FieldText: "x"}).String(FieldText))
}

func TestDefaultPayload_DeliveryCardFullyPopulated(t *testing.T) {
	t.Parallel()

	p := DefaultPayload(KindDeliveryMeasurementCard)
	for _, key := range []string{FieldFullName, FieldPhone, FieldAddress, FieldCountry, FieldMeasurements, FieldShippingStatus} {
		_, ok := p[key]
		require.True(t, ok, "missing %s", key)
	}
	require.Equal(t, ShippingStatusPending, p.String(FieldShippingStatus))
}
