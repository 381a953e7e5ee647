package client

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
	"github.com/Znerken/Omerta-RPG-sub001/internal/state"
)

// Cache keys used by the debounced synchronizer.
const (
	keyBalance    = "balance"
	keyExperience = "experience"
	keyReputation = "reputation"
	keyUnread     = "unread"
)

// cashNotifyThreshold keeps small transactions out of the notification list.
const cashNotifyThreshold = 100

func (c *Client) registerConsumers() {
	c.unregister = append(c.unregister,
		c.registry.Register(c.consumeEconomy),
		c.registry.Register(c.consumeSocial),
		c.registry.Register(c.consumeMessages),
		c.registry.Register(c.auditUnknown),
	)
}

// consumeEconomy coalesces balance/experience/reputation deltas into debounced
// cache updates and raises notifications for significant transactions.
func (c *Client) consumeEconomy(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCashTransaction, protocol.TypeExperienceGain, protocol.TypeReputationChange:
	default:
		return
	}

	event, err := protocol.DecodeEvent(env)
	if err != nil {
		slog.Warn("Dropping undecodable economy event", "type", env.Type, "error", err)
		return
	}

	switch e := event.(type) {
	case protocol.CashTransaction:
		c.syncer.Schedule(keyBalance, func() {
			c.cache.Update(func(s *state.Snapshot) { s.Balance = e.NewBalance })
		})
		if e.Amount >= cashNotifyThreshold {
			c.notifier.Notify(env.Type, "Payment received", fmt.Sprintf("+%d credits", e.Amount), e)
		} else if e.Amount <= -cashNotifyThreshold {
			c.notifier.Notify(env.Type, "Payment sent", fmt.Sprintf("%d credits", e.Amount), e)
		}
	case protocol.ExperienceGain:
		c.syncer.Schedule(keyExperience, func() {
			c.cache.Update(func(s *state.Snapshot) { s.Experience = e.NewExperience })
		})
	case protocol.ReputationChange:
		c.syncer.Schedule(keyReputation, func() {
			c.cache.Update(func(s *state.Snapshot) { s.Reputation = e.NewReputation })
		})
	}
}

// consumeSocial turns friend events into notifications. Status flaps group
// into a single record with a running count.
func (c *Client) consumeSocial(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeFriendRequest, protocol.TypeFriendAccept,
		protocol.TypeFriendRemove, protocol.TypeFriendStatus:
	default:
		return
	}

	event, err := protocol.DecodeEvent(env)
	if err != nil {
		slog.Warn("Dropping undecodable social event", "type", env.Type, "error", err)
		return
	}

	switch e := event.(type) {
	case protocol.FriendRequest:
		c.notifier.Notify(env.Type, "Friend request",
			fmt.Sprintf("%s sent you a friend request", e.From), e)
	case protocol.FriendAccept:
		c.notifier.Notify(env.Type, "Friend request accepted",
			fmt.Sprintf("%s accepted your friend request", e.Friend), e)
	case protocol.FriendRemove:
		c.notifier.Notify(env.Type, "Friend removed",
			fmt.Sprintf("%s removed you from their friends", e.Friend), e)
	case protocol.FriendStatus:
		status := "offline"
		if e.Online {
			status = "online"
		}
		title := fmt.Sprintf("%s went %s", e.Friend, status)
		c.notifier.Notify(env.Type, title, title, e)
	}
}

// consumeMessages raises chat notifications and keeps the unread counter in
// sync through the debounced cache path.
func (c *Client) consumeMessages(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChatMessage, protocol.TypeGroupMessage,
		protocol.TypeBroadcastMessage, protocol.TypeUnreadCount:
	default:
		return
	}

	event, err := protocol.DecodeEvent(env)
	if err != nil {
		slog.Warn("Dropping undecodable message event", "type", env.Type, "error", err)
		return
	}

	switch e := event.(type) {
	case protocol.ChatMessage:
		c.notifier.Notify(env.Type, "Message from "+e.From, e.Text, e)
	case protocol.GroupMessage:
		c.notifier.Notify(env.Type, fmt.Sprintf("%s in %s", e.From, e.Group), e.Text, e)
	case protocol.BroadcastMessage:
		c.notifier.Notify(env.Type, "Announcement", e.Text, e)
	case protocol.UnreadCount:
		c.syncer.Schedule(keyUnread, func() {
			c.cache.Update(func(s *state.Snapshot) { s.UnreadCount = e.Count })
		})
	}
}

// auditUnknown logs envelope types outside the recognized families so new
// server events surface in logs instead of disappearing silently.
func (c *Client) auditUnknown(env protocol.Envelope) {
	_, err := protocol.DecodeEvent(env)
	if errors.Is(err, protocol.ErrUnknownType) {
		slog.Warn("Ignoring unknown envelope type", "type", env.Type)
	}
}
