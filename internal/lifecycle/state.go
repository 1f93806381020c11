package lifecycle

import (
	"github.com/chatsphere/internal/session"
)

// RequestTab is a pending-request tab with its unread indicator.
type RequestTab struct {
	From   string `json:"from"`
	Unread bool   `json:"unread"`
}

// ChatTab is a private-chat tab with its unread indicator.
type ChatTab struct {
	DisplayName string `json:"displayName"`
	Channel     string `json:"channel"`
	Unread      bool   `json:"unread"`
}

// ViewState is everything the view collaborator needs to render: tab lists,
// indicators, the active conversation and the derived input state. Computed
// fresh on each read; an active pointer referring to a removed item renders
// as the idle view.
type ViewState struct {
	Username     string          `json:"username"`
	Channels     []string        `json:"channels"`
	Requests     []RequestTab    `json:"requests"`
	Chats        []ChatTab       `json:"chats"`
	Active       *session.Active `json:"active,omitempty"`
	Header       string          `json:"header"`
	InputEnabled bool            `json:"inputEnabled"`
	ShowAccept   bool            `json:"showAccept"`
}

// ViewState projects the current state for rendering.
func (m *Machine) ViewState() ViewState {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs := ViewState{
		Username: m.username,
		Channels: m.store.Channels(),
	}
	for _, from := range m.store.Requests() {
		vs.Requests = append(vs.Requests, RequestTab{
			From:   from,
			Unread: !m.store.RequestViewed(from),
		})
	}
	for _, chat := range m.store.Chats() {
		vs.Chats = append(vs.Chats, ChatTab{
			DisplayName: chat.DisplayName,
			Channel:     chat.Channel,
			Unread:      !m.store.ChatViewed(chat.DisplayName),
		})
	}

	active := m.store.Active()
	if active == nil || !m.activeExists(active) {
		return vs
	}
	vs.Active = active
	vs.Header = active.ID
	vs.InputEnabled = active.Kind != session.KindRequest
	vs.ShowAccept = active.Kind == session.KindRequest
	return vs
}

func (m *Machine) activeExists(active *session.Active) bool {
	switch active.Kind {
	case session.KindChannel:
		return m.store.HasChannel(active.ID)
	case session.KindRequest:
		return m.store.HasRequest(active.ID)
	case session.KindChat:
		return m.store.ChatByName(active.ID) != nil
	}
	return false
}
