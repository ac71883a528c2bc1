package server

import (
	"fmt"

	"github.com/aeolun/auboutique/pkg/protocol"
)

// Relay outcomes, used as metric labels.
const (
	relayDelivered        = "delivered"
	relayOffline          = "offline"
	relayUnknownRecipient = "unknown_recipient"
	relayFailed           = "failed"
)

// relayChat forwards a chat message to its recipient's live connection.
// Delivery is best effort and at most once: an offline recipient gets
// nothing, and nothing is queued for later.
func (s *Server) relayChat(req *protocol.ChatRequest) error {
	exists, err := s.store.UserExists(req.To)
	if err != nil {
		return fmt.Errorf("check recipient %q: %w", req.To, err)
	}
	if !exists {
		s.metrics.RecordChatRelay(relayUnknownRecipient)
		return protocol.ErrUnknownRecipient
	}

	target, ok := s.sessions.Lookup(req.To)
	if !ok {
		s.metrics.RecordChatRelay(relayOffline)
		return protocol.ErrRecipientOffline
	}

	payload, err := protocol.Marshal(protocol.ChatPush{
		Type:      protocol.MsgChat,
		From:      req.From,
		Message:   req.Message,
		Timestamp: s.now().Format(protocol.TimestampLayout),
	})
	if err != nil {
		return fmt.Errorf("encode chat push: %w", err)
	}

	if err := target.EncodeFrameTimeout(protocol.NewFrame(protocol.TypePush, payload), s.config.WriteTimeout); err != nil {
		// The recipient's stream may hold a partial frame; it is unusable.
		debugLog.Printf("Conn %d: push to %s failed: %v", target.ID(), req.To, err)
		s.sessions.Unbind(target)
		target.Close()
		s.metrics.RecordChatRelay(relayFailed)
		return protocol.ErrDeliveryFailed
	}

	debugLog.Printf("Relayed chat %s -> %s (conn %d)", req.From, req.To, target.ID())
	s.metrics.RecordChatRelay(relayDelivered)
	return nil
}
