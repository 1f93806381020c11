// Package protocol translates inbound named events into lifecycle and
// presence mutations, and owns the reconnect handshake. Malformed payloads
// are logged and dropped; divergence is corrected by the next sync event,
// never surfaced to the user.
package protocol

import (
	"encoding/json"

	"github.com/chatsphere/internal/lifecycle"
	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/presence"
	"github.com/chatsphere/internal/transport"
)

type Handler struct {
	machine *lifecycle.Machine
	roster  *presence.Tracker
}

func New(machine *lifecycle.Machine, roster *presence.Tracker) *Handler {
	return &Handler{machine: machine, roster: roster}
}

// Bind registers every inbound event and the connect hook on the transport.
func (h *Handler) Bind(conn *transport.Conn) {
	conn.Handle(transport.EventLoadMessages, h.handleLoadMessages)
	conn.Handle(transport.EventNewMessage, h.handleNewMessage)
	conn.Handle(transport.EventUserStatus, h.handleUserStatus)
	conn.Handle(transport.EventRequestPrivateChat, h.handleRequestPrivateChat)
	conn.Handle(transport.EventRemoveRequest, h.handleRemoveRequest)
	conn.Handle(transport.EventStartPrivateChat, h.handleStartPrivateChat)
	conn.Handle(transport.EventClosePrivateChat, h.handleClosePrivateChat)
	conn.Handle(transport.EventRejoinChannelsResponse, h.handleRejoinChannelsResponse)
	conn.Handle(transport.EventCheckPrivateRequestsResponse, h.handleCheckPrivateRequestsResponse)
	conn.Handle(transport.EventStatus, h.handleStatus)
	conn.OnConnect(h.machine.HandleConnect)
}

// decode unmarshals one payload; a malformed payload is dropped with a log
// line, never an error to the caller.
func decode(event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		logger.Errorf("protocol: bad %s payload: %v", event, err)
		return false
	}
	return true
}

// load_messages carries a bare array, scoped by the server to the room just
// joined.
func (h *Handler) handleLoadMessages(data json.RawMessage) {
	var msgs []model.ChatMessage
	if !decode(transport.EventLoadMessages, data, &msgs) {
		return
	}
	h.machine.ApplyLoadMessages(msgs)
}

func (h *Handler) handleNewMessage(data json.RawMessage) {
	var p transport.NewMessagePayload
	if !decode(transport.EventNewMessage, data, &p) {
		return
	}
	h.machine.ApplyNewMessage(p.Username, p.Message, p.Channel)
}

func (h *Handler) handleUserStatus(data json.RawMessage) {
	var p transport.UserStatusPayload
	if !decode(transport.EventUserStatus, data, &p) {
		return
	}
	h.roster.SetStatus(p.Username, p.Online)
}

func (h *Handler) handleRequestPrivateChat(data json.RawMessage) {
	var p transport.PrivatePairPayload
	if !decode(transport.EventRequestPrivateChat, data, &p) {
		return
	}
	h.machine.ApplyIncomingRequest(p.From, p.To)
}

func (h *Handler) handleRemoveRequest(data json.RawMessage) {
	var p transport.RemoveRequestPayload
	if !decode(transport.EventRemoveRequest, data, &p) {
		return
	}
	h.machine.ApplyRemoveRequest(p.Request)
}

func (h *Handler) handleStartPrivateChat(data json.RawMessage) {
	var p transport.StartPrivateChatPayload
	if !decode(transport.EventStartPrivateChat, data, &p) {
		return
	}
	h.machine.ApplyStartPrivateChat(p.From, p.To, p.Channel)
}

func (h *Handler) handleClosePrivateChat(data json.RawMessage) {
	var p transport.ClosePrivateChatPayload
	if !decode(transport.EventClosePrivateChat, data, &p) {
		return
	}
	h.machine.ApplyPeerClose(p.From, p.To, p.Channel)
}

func (h *Handler) handleRejoinChannelsResponse(data json.RawMessage) {
	var p transport.RejoinChannelsResponsePayload
	if !decode(transport.EventRejoinChannelsResponse, data, &p) {
		return
	}
	h.machine.ApplyRejoinChannels(p.Channels)
}

func (h *Handler) handleCheckPrivateRequestsResponse(data json.RawMessage) {
	var p transport.CheckPrivateRequestsResponsePayload
	if !decode(transport.EventCheckPrivateRequestsResponse, data, &p) {
		return
	}
	h.machine.ApplyPendingRequests(p.Requests)
}

// status is the server's connection acknowledgement; log-only.
func (h *Handler) handleStatus(data json.RawMessage) {
	var p transport.StatusPayload
	if !decode(transport.EventStatus, data, &p) {
		return
	}
	logger.Infof("server: %s", p.Msg)
}
