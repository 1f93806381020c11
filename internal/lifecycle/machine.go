// Package lifecycle governs conversation state transitions. All user
// commands and server-driven appliers funnel through one mutex, so every
// mutation runs to completion before the next and the store itself needs no
// locking.
package lifecycle

import (
	"strings"
	"sync"
	"time"

	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/session"
	"github.com/chatsphere/internal/transport"
	"github.com/chatsphere/internal/view"
)

// Emitter sends named events to the server. Fire-and-forget; delivery is the
// transport's contract.
type Emitter interface {
	Emit(event string, data any)
}

// Machine drives the conversation lifecycle: channels between absent and
// joined, private conversations through requested, active and closed.
type Machine struct {
	mu        sync.Mutex
	username  string
	loggedOut bool
	store     *session.Store
	emitter   Emitter
	sink      view.MessageSink
}

func New(username string, loggedOut bool, store *session.Store, emitter Emitter, sink view.MessageSink) *Machine {
	if sink == nil {
		sink = view.LogSink{}
	}
	return &Machine{
		username:  username,
		loggedOut: loggedOut,
		store:     store,
		emitter:   emitter,
		sink:      sink,
	}
}

func (m *Machine) Username() string { return m.username }

// activate switches the view to one conversation: clears the message pane,
// moves the active pointer, and joins the room unless the conversation is a
// pending request (room is empty then).
func (m *Machine) activate(kind session.Kind, id, room string) {
	m.sink.Clear()
	m.store.SetActive(kind, id)
	if room != "" {
		m.emitter.Emit(transport.EventJoin, transport.JoinPayload{Channel: room})
	}
}

// fallback selects the first remaining active channel, or the idle view when
// none remain.
func (m *Machine) fallback() {
	if channels := m.store.Channels(); len(channels) > 0 {
		m.activate(session.KindChannel, channels[0], channels[0])
		return
	}
	m.sink.Clear()
	m.store.ClearActive()
}

// --- User commands ---

// OpenChannel joins a channel from the directory and makes it active. A
// channel both newly added and newly selected emits join twice, matching the
// server's idempotent room semantics.
func (m *Machine) OpenChannel(name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.AddChannel(name) {
		m.emitter.Emit(transport.EventJoin, transport.JoinPayload{Channel: name})
	}
	if !m.store.IsActive(session.KindChannel, name) {
		m.activate(session.KindChannel, name, name)
	}
}

// SelectChannel makes an already-joined channel the active conversation.
func (m *Machine) SelectChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.store.HasChannel(name) || m.store.IsActive(session.KindChannel, name) {
		return
	}
	m.activate(session.KindChannel, name, name)
}

// CloseChannel leaves a channel. Closing an absent channel is a no-op.
func (m *Machine) CloseChannel(name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wasActive := m.store.IsActive(session.KindChannel, name)
	if !m.store.RemoveChannel(name) {
		return
	}
	m.emitter.Emit(transport.EventLeave, transport.LeavePayload{Channel: name})
	if wasActive {
		m.fallback()
	}
}

// SelectRequest opens a pending request's tab: marks it viewed and shows the
// accept affordance. No join is emitted for merely viewing a request.
func (m *Machine) SelectRequest(from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.store.HasRequest(from) || m.store.IsActive(session.KindRequest, from) {
		return
	}
	m.store.MarkRequestViewed(from)
	m.sink.Clear()
	m.store.SetActive(session.KindRequest, from)
}

// CloseRequest dismisses a pending request without accepting it.
func (m *Machine) CloseRequest(from string) {
	if from == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wasActive := m.store.IsActive(session.KindRequest, from)
	if !m.store.RemoveRequest(from) {
		return
	}
	if wasActive {
		m.fallback()
	}
}

// AcceptRequest accepts a pending request: the accepting side transitions
// straight to an active private chat and tells the server, which confirms
// the requester via start_private_chat. Accepting a request that no longer
// exists is a no-op.
func (m *Machine) AcceptRequest(from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.store.HasRequest(from) {
		return
	}
	m.emitter.Emit(transport.EventAcceptPrivateChat, transport.PrivatePairPayload{From: from, To: m.username})
	m.store.RemoveRequest(from)

	channel := model.PrivateChannel(from, m.username)
	if m.store.ChatByName(from) == nil {
		m.store.AddChat(model.PrivateChat{DisplayName: from, Channel: channel})
	}
	m.store.MarkChatViewed(from)
	m.activate(session.KindChat, from, channel)
}

// SelectChat makes a private chat the active conversation.
func (m *Machine) SelectChat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.store.ChatByName(name)
	if chat == nil || m.store.IsActive(session.KindChat, name) {
		return
	}
	m.store.MarkChatViewed(name)
	m.activate(session.KindChat, name, chat.Channel)
}

// CloseChat closes a private chat and notifies the peer, who removes their
// own entry independently. Closing an absent chat is a no-op.
func (m *Machine) CloseChat(name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wasActive := m.store.IsActive(session.KindChat, name)
	chat := m.store.RemoveChat(name)
	if chat == nil {
		return
	}
	m.emitter.Emit(transport.EventLeave, transport.LeavePayload{Channel: chat.Channel})
	m.emitter.Emit(transport.EventClosePrivateChat, transport.ClosePrivateChatPayload{
		From:    m.username,
		To:      name,
		Channel: chat.Channel,
	})
	if wasActive {
		m.fallback()
	}
}

// RequestPrivateChat asks another user for a private chat. The request is
// stored on the target's client only; re-requesting a user with a pending
// request or an active chat is deduplicated.
func (m *Machine) RequestPrivateChat(to string) {
	if to == "" || to == m.username {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.HasRequest(to) || m.store.ChatByName(to) != nil {
		return
	}
	m.emitter.Emit(transport.EventRequestPrivateChat, transport.PrivatePairPayload{From: m.username, To: to})
}

// SendMessage sends trimmed text to the active conversation and echoes it
// locally. Pending requests take no input; nothing is sent without an active
// channel or chat.
func (m *Machine) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	active := m.store.Active()
	if active == nil {
		return
	}

	var room string
	switch active.Kind {
	case session.KindChannel:
		if !m.store.HasChannel(active.ID) {
			return
		}
		room = active.ID
	case session.KindChat:
		chat := m.store.ChatByName(active.ID)
		if chat == nil {
			return
		}
		room = chat.Channel
	default:
		return
	}

	m.emitter.Emit(transport.EventMessage, transport.MessagePayload{Channel: room, Message: text})
	m.sink.Append(model.ChatMessage{
		Username:  m.username,
		Message:   text,
		Timestamp: time.Now().Format(time.TimeOnly),
	})
}

// --- Server-driven appliers ---

// ApplyIncomingRequest records a request directed at the current user.
// Duplicates against both the pending-request and private-chat collections
// are dropped.
func (m *Machine) ApplyIncomingRequest(from, to string) {
	if from == "" || to != m.username || from == m.username {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.HasRequest(from) || m.store.ChatByName(from) != nil {
		return
	}
	m.store.AddRequest(from)
}

// ApplyRemoveRequest is the server-confirmed withdrawal of a pending
// request (accepted elsewhere or retracted). Unconditional, idempotent.
func (m *Machine) ApplyRemoveRequest(request string) {
	if request == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.RemoveRequest(request)
}

// ApplyStartPrivateChat creates the private chat confirmed by the server for
// either named party, pruning any now-stale request between the two. The
// requester's side is created unviewed.
func (m *Machine) ApplyStartPrivateChat(from, to, channel string) {
	if channel == "" || (from != m.username && to != m.username) {
		return
	}
	other := from
	if from == m.username {
		other = to
	}
	if other == "" || other == m.username {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if from != "" {
		m.store.RemoveRequest(from)
	}
	if to != "" {
		m.store.RemoveRequest(to)
	}
	if m.store.ChatByName(other) == nil {
		m.store.AddChat(model.PrivateChat{DisplayName: other, Channel: channel})
	}
}

// ApplyPeerClose removes the private chat the peer closed, keyed by room
// identifier. Nothing is emitted back (no event storm); a close for an
// unknown channel is the chat never having existed here.
func (m *Machine) ApplyPeerClose(from, to, channel string) {
	if channel == "" || (from != m.username && to != m.username) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.store.RemoveChatByChannel(channel)
	if chat == nil {
		return
	}
	if m.store.IsActive(session.KindChat, chat.DisplayName) {
		m.fallback()
	}
}

// ApplyRejoinChannels replaces the channel set with the server-confirmed
// one. A surviving active channel re-joins its room; an evicted one falls
// back. A non-channel active conversation is left alone.
func (m *Machine) ApplyRejoinChannels(channels []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.ReplaceChannels(channels)
	active := m.store.Active()
	if active == nil || active.Kind != session.KindChannel {
		return
	}
	if !m.store.HasChannel(active.ID) {
		m.fallback()
		return
	}
	m.emitter.Emit(transport.EventJoin, transport.JoinPayload{Channel: active.ID})
}

// ApplyPendingRequests replaces the pending-request set with the
// server-confirmed one.
func (m *Machine) ApplyPendingRequests(requests []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.ReplaceRequests(requests)
}

// ApplyNewMessage routes an inbound room message to the display if the room
// maps to the active conversation. The sender's own echo is filtered; the
// local send already rendered it.
func (m *Machine) ApplyNewMessage(username, message, channel string) {
	if channel == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	name := channel
	if chat := m.store.ChatByChannel(channel); chat != nil {
		name = chat.DisplayName
	}
	if !m.store.HasChannel(name) && m.store.ChatByName(name) == nil {
		return
	}
	active := m.store.Active()
	if active == nil || active.Kind == session.KindRequest || active.ID != name {
		return
	}
	if username == m.username {
		return
	}
	m.sink.Append(model.ChatMessage{
		Username:  username,
		Message:   message,
		Timestamp: time.Now().Format(time.TimeOnly),
	})
}

// ApplyLoadMessages replaces the message pane with a room backlog. The
// server scopes the event to the room just joined; it carries no room
// identifier, so it lands whenever any conversation is showing.
func (m *Machine) ApplyLoadMessages(msgs []model.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.Active() == nil {
		return
	}
	m.sink.History(msgs)
}

// HandleConnect runs the rejoin handshake after every (re)connect: offer the
// locally known channel set for reconciliation, ask for pending requests,
// and re-join every private chat room (private chats are not part of the
// server-side rejoin diff).
func (m *Machine) HandleConnect() {
	if m.username == "" || m.loggedOut {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitter.Emit(transport.EventRejoinChannels, transport.RejoinChannelsPayload{
		Username: m.username,
		Channels: m.store.Channels(),
	})
	m.emitter.Emit(transport.EventCheckPrivateRequests, transport.CheckPrivateRequestsPayload{
		Username: m.username,
	})
	for _, chat := range m.store.Chats() {
		m.emitter.Emit(transport.EventJoin, transport.JoinPayload{Channel: chat.Channel})
	}
}

// Shutdown emits the teardown refresh and persists a final snapshot. Best
// effort: delivery of the refresh is not awaited.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitter.Emit(transport.EventRefresh, nil)
	m.store.Flush()
}
