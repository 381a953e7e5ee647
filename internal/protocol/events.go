package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks an envelope whose type is not part of the recognized
// inbound families. Callers log and skip these instead of trusting the shape.
var ErrUnknownType = errors.New("unknown envelope type")

// Event is an inbound payload decoded at the boundary into its family type.
type Event interface {
	EventType() string
}

// CashTransaction reports a balance delta and the resulting balance.
type CashTransaction struct {
	Amount     int64 `json:"amount"`
	NewBalance int64 `json:"newBalance"`
}

func (CashTransaction) EventType() string { return TypeCashTransaction }

// ExperienceGain reports an experience delta and the resulting total.
type ExperienceGain struct {
	Amount        int64 `json:"amount"`
	NewExperience int64 `json:"newExperience"`
}

func (ExperienceGain) EventType() string { return TypeExperienceGain }

// ReputationChange reports a reputation delta and the resulting total.
type ReputationChange struct {
	Amount        int64 `json:"amount"`
	NewReputation int64 `json:"newReputation"`
}

func (ReputationChange) EventType() string { return TypeReputationChange }

// FriendRequest signals an incoming friend request.
type FriendRequest struct {
	From string `json:"from"`
}

func (FriendRequest) EventType() string { return TypeFriendRequest }

// FriendAccept signals that a friend request was accepted.
type FriendAccept struct {
	Friend string `json:"friend"`
}

func (FriendAccept) EventType() string { return TypeFriendAccept }

// FriendRemove signals that a friendship was removed.
type FriendRemove struct {
	Friend string `json:"friend"`
}

func (FriendRemove) EventType() string { return TypeFriendRemove }

// FriendStatus signals a friend going online or offline.
type FriendStatus struct {
	Friend string `json:"friend"`
	Online bool   `json:"online"`
}

func (FriendStatus) EventType() string { return TypeFriendStatus }

// ChatMessage is a direct message from another player.
type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (ChatMessage) EventType() string { return TypeChatMessage }

// GroupMessage is a message in a group channel (e.g. a family/crew chat).
type GroupMessage struct {
	From  string `json:"from"`
	Group string `json:"group"`
	Text  string `json:"text"`
}

func (GroupMessage) EventType() string { return TypeGroupMessage }

// BroadcastMessage is a server-wide announcement.
type BroadcastMessage struct {
	Text string `json:"text"`
}

func (BroadcastMessage) EventType() string { return TypeBroadcastMessage }

// UnreadCount updates the number of unread direct messages.
type UnreadCount struct {
	Count int `json:"count"`
}

func (UnreadCount) EventType() string { return TypeUnreadCount }

// Pong is the keepalive echo from the server.
type Pong struct{}

func (Pong) EventType() string { return TypePong }

// DecodeEvent maps an inbound envelope to its typed payload. Unknown types
// yield ErrUnknownType; malformed payloads yield a decode error. Either way
// the connection is unaffected.
func DecodeEvent(env Envelope) (Event, error) {
	switch env.Type {
	case TypeCashTransaction:
		return decodeAs[CashTransaction](env)
	case TypeExperienceGain:
		return decodeAs[ExperienceGain](env)
	case TypeReputationChange:
		return decodeAs[ReputationChange](env)
	case TypeFriendRequest:
		return decodeAs[FriendRequest](env)
	case TypeFriendAccept:
		return decodeAs[FriendAccept](env)
	case TypeFriendRemove:
		return decodeAs[FriendRemove](env)
	case TypeFriendStatus:
		return decodeAs[FriendStatus](env)
	case TypeChatMessage:
		return decodeAs[ChatMessage](env)
	case TypeGroupMessage:
		return decodeAs[GroupMessage](env)
	case TypeBroadcastMessage:
		return decodeAs[BroadcastMessage](env)
	case TypeUnreadCount:
		return decodeAs[UnreadCount](env)
	case TypePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T Event](env Envelope) (Event, error) {
	var payload T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return payload, nil
}
