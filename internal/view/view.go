// Package view is the boundary to the rendering collaborator. The sync
// engine only signals "state changed" and hands off messages for display;
// everything visual lives on the other side.
package view

import (
	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/model"
)

// Notifier receives state-changed signals. Implementations re-render from
// current state and must not block the caller.
type Notifier interface {
	StateChanged()
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func()

func (f NotifierFunc) StateChanged() { f() }

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) StateChanged() {}

// MessageSink is the message-display collaborator. Clear empties the pane on
// a conversation switch; History replaces it with the room's backlog; Append
// adds one message.
type MessageSink interface {
	Clear()
	History(msgs []model.ChatMessage)
	Append(msg model.ChatMessage)
}

// LogSink writes messages to the log. Default sink until a real display
// collaborator is attached.
type LogSink struct{}

func (LogSink) Clear() {}

func (LogSink) History(msgs []model.ChatMessage) {
	for _, m := range msgs {
		logger.Infof("history %s: %s", m.Username, m.Message)
	}
}

func (LogSink) Append(msg model.ChatMessage) {
	logger.Infof("message %s: %s", msg.Username, msg.Message)
}
