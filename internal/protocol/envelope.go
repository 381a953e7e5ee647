// Package protocol defines the wire envelope exchanged over the realtime
// connection and the typed payloads of the recognized inbound event families.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound envelope types produced by this client.
const (
	TypeIdentify   = "identify"
	TypeHeartbeat  = "heartbeat"
	TypeDisconnect = "disconnect"
)

// Inbound envelope types recognized by this client.
const (
	TypeCashTransaction  = "cash_transaction"
	TypeExperienceGain   = "experience_gain"
	TypeReputationChange = "reputation_change"
	TypeFriendRequest    = "friend_request"
	TypeFriendAccept     = "friend_accept"
	TypeFriendRemove     = "friend_remove"
	TypeFriendStatus     = "friend_status"
	TypeChatMessage      = "chat_message"
	TypeGroupMessage     = "group_message"
	TypeBroadcastMessage = "broadcast_message"
	TypeUnreadCount      = "unread_count"
	TypePong             = "pong"
)

// Envelope is the minimal {type, data} wire unit. Data is left raw; the
// envelope type alone drives handling.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for the given type and payload.
func Encode(envelopeType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", envelopeType, err)
		}
		data = raw
	}
	frame, err := json.Marshal(Envelope{Type: envelopeType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", envelopeType, err)
	}
	return frame, nil
}

// Decode parses a wire frame into an Envelope. Frames without a type are
// rejected as malformed.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// IdentifyPayload carries the opaque subject id binding the connection.
type IdentifyPayload struct {
	SubjectID string `json:"subjectId"`
	Token     string `json:"token,omitempty"`
}

// NewIdentify builds the identification frame sent immediately after open.
func NewIdentify(subjectID, token string) ([]byte, error) {
	return Encode(TypeIdentify, IdentifyPayload{SubjectID: subjectID, Token: token})
}

// NewHeartbeat builds the periodic keepalive frame.
func NewHeartbeat() ([]byte, error) {
	return Encode(TypeHeartbeat, nil)
}

// DisconnectPayload announces an intentional teardown before closing.
type DisconnectPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewDisconnect builds the clean-disconnect frame sent before intentional close.
func NewDisconnect(reason string) ([]byte, error) {
	return Encode(TypeDisconnect, DisconnectPayload{Reason: reason})
}
