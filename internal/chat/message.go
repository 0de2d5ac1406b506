// Package chat implements the conversation reconciliation core: the
// canonical message model, wire-shape normalization, the optimistic cache,
// the ordered deduplicated store, and typing state.
//
// All types in this package are loop-confined: the conversation actor owns
// them and every mutation happens on its event loop, so nothing here locks.
package chat

import "time"

// Kind is the closed message discriminant all components operate on.
type Kind string

const (
	// KindUser is a plain text message from a participant.
	KindUser Kind = "user"
	// KindImage is an uploaded image message.
	KindImage Kind = "image"
	// KindSystemAccepted marks a job request being accepted.
	KindSystemAccepted Kind = "system.accepted"
	// KindPayment is a completed payment record.
	KindPayment Kind = "payment"
	// KindActionPayment prompts the creator to make a payment.
	KindActionPayment Kind = "action.payment"
	// KindActionDeliveryMeasurement prompts for delivery details.
	KindActionDeliveryMeasurement Kind = "action.deliveryMeasurement"
	// KindDeliveryMeasurementCard carries submitted delivery and measurement
	// details rendered as a card.
	KindDeliveryMeasurementCard Kind = "deliveryMeasurement.card"
	// KindActionCompleted prompts for order completion confirmation.
	KindActionCompleted Kind = "action.completed"
	// KindEscrowPayment records funds moving into escrow.
	KindEscrowPayment Kind = "escrow.payment"
	// KindEscrowRelease records funds released from escrow.
	KindEscrowRelease Kind = "escrow.release"
)

// Role identifies which side of the marketplace a message came from.
type Role string

const (
	RoleMaker   Role = "maker"
	RoleCreator Role = "creator"
	RoleSystem  Role = "system"
)

// Status is the message lifecycle state.
type Status string

const (
	// StatusPending means the message was created locally and is awaiting a
	// server acknowledgement.
	StatusPending Status = "pending"
	// StatusUploading means a file transfer for this message is in flight.
	StatusUploading Status = "uploading"
	// StatusSent means the server acknowledged the message.
	StatusSent Status = "sent"
	// StatusUploaded means the file transfer completed and the wire message
	// was emitted.
	StatusUploaded Status = "uploaded"
	// StatusFailed is the terminal failure state; recoverable only through an
	// explicit user retry.
	StatusFailed Status = "failed"
	// StatusDelivered means the remote participant received the message.
	StatusDelivered Status = "delivered"
	// StatusRead means the remote participant read the message.
	StatusRead Status = "read"
)

// Message is the canonical representation of one conversation entry.
type Message struct {
	// ID is the server-assigned identity; empty until acknowledged.
	ID string
	// ClientMessageID is the client-minted correlation key; present for any
	// message originated on this device. It is the merge key before ID exists.
	ClientMessageID string
	// Kind is the closed discriminant.
	Kind Kind
	// Sender is the resolved participant role.
	Sender Role
	// SenderID is the raw participant identity from the backend.
	SenderID string
	// Time is the ordering timestamp.
	Time time.Time
	// Status is the lifecycle state.
	Status Status
	// Data is the kind-specific payload.
	Data Payload
}

// Terminal reports whether the message reached a terminal lifecycle state.
func (m Message) Terminal() bool {
	switch m.Status {
	case StatusSent, StatusUploaded, StatusFailed, StatusDelivered, StatusRead:
		return true
	default:
		return false
	}
}
