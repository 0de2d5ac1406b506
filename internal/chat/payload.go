package chat

// Payload is the kind-specific payload of a canonical message.
//
// It is an open key/value bag rather than one struct per kind so that the
// field-level fallback chain in normalization and the shallow overlay merge
// in the store can treat all kinds uniformly without losing unknown fields.
type Payload map[string]any

// Payload keys shared across kinds. Kind-specific defaults live in
// DefaultPayload.
const (
	// FieldText is the message text (KindUser).
	FieldText = "text"
	// FieldAvatarURL is the sender avatar chosen at send time.
	FieldAvatarURL = "avatarUrl"
	// FieldImageURL is the canonical uploaded image URL (KindImage).
	FieldImageURL = "imageUrl"
	// FieldAmount is a payment amount (payment/escrow kinds).
	FieldAmount = "amount"
	// FieldPayer identifies who paid (payment/escrow kinds).
	FieldPayer = "payer"
	// FieldFullName is the recipient name (KindDeliveryMeasurementCard).
	FieldFullName = "fullName"
	// FieldPhone is the recipient phone (KindDeliveryMeasurementCard).
	FieldPhone = "phone"
	// FieldAddress is the delivery address (KindDeliveryMeasurementCard).
	FieldAddress = "address"
	// FieldCountry is the delivery country (KindDeliveryMeasurementCard).
	FieldCountry = "country"
	// FieldMeasurements is the measurement summary (KindDeliveryMeasurementCard).
	FieldMeasurements = "measurements"
	// FieldShippingStatus is the shipping progress label (KindDeliveryMeasurementCard).
	FieldShippingStatus = "shippingStatus"
	// FieldJobID links a message to its marketplace job.
	FieldJobID = "jobId"
	// FieldEscrowID links a message to its escrow record.
	FieldEscrowID = "escrowId"
)

// ShippingStatusPending is the default shipping progress label.
const ShippingStatusPending = "Pending"

// String returns the string value under key, or "" when absent or not a
// string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Overlay returns a copy of p with every key present in over taking
// precedence. Keys absent from over keep their value in p; empty-string
// values in over are treated as absent so a stripped-down server echo cannot
// erase richer locally-known fields.
func (p Payload) Overlay(over Payload) Payload {
	out := p.Clone()
	if out == nil {
		out = Payload{}
	}
	for k, v := range over {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// DefaultPayload returns the kind-specific defaults every message of the
// given kind must carry so rendering never sees a missing field.
func DefaultPayload(kind Kind) Payload {
	switch kind {
	case KindUser:
		return Payload{FieldText: "", FieldAvatarURL: ""}
	case KindImage:
		return Payload{FieldImageURL: ""}
	case KindPayment, KindActionPayment, KindEscrowPayment, KindEscrowRelease:
		return Payload{FieldAmount: "", FieldPayer: ""}
	case KindDeliveryMeasurementCard:
		return Payload{
			FieldFullName:       "",
			FieldPhone:          "",
			FieldAddress:        "",
			FieldCountry:        "",
			FieldMeasurements:   "",
			FieldShippingStatus: ShippingStatusPending,
		}
	default:
		return Payload{}
	}
}
