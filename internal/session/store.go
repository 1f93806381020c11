// Package session owns the canonical conversation state: active channels,
// private-chat requests, private chats, viewed markers, and the single
// active-conversation pointer. Every mutation persists the snapshot and
// signals the view.
package session

import (
	"context"
	"time"

	"github.com/chatsphere/internal/logger"
	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/storage"
	"github.com/chatsphere/internal/view"
)

const persistTimeout = 2 * time.Second

// Kind discriminates what the active-conversation pointer refers to.
type Kind string

const (
	KindChannel Kind = "channel"
	KindRequest Kind = "request"
	KindChat    Kind = "chat"
)

// Active identifies the single conversation currently displayed. ID is a
// channel name, a requester's username, or a private chat's display name
// depending on Kind.
type Active struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Store is the conversation store. It is not safe for concurrent use; the
// lifecycle machine serializes all access so mutations run to completion.
//
// Collection operations are idempotent: adding a present id or removing an
// absent one is a no-op, not an error. The snapshot is persisted and the
// view notified whenever state actually changes.
type Store struct {
	snapshots storage.SnapshotStore
	notifier  view.Notifier

	channels       []string
	requests       []string
	viewedRequests []string
	chats          []model.PrivateChat
	viewedChats    []string
	active         *Active
}

// New restores the store from the snapshot. A missing or corrupt snapshot
// seeds empty collections; the rejoin handshake reconciles against the
// server afterwards.
func New(ctx context.Context, snapshots storage.SnapshotStore, notifier view.Notifier) *Store {
	if notifier == nil {
		notifier = view.NopNotifier{}
	}
	s := &Store{snapshots: snapshots, notifier: notifier}

	snap, err := snapshots.Load(ctx)
	if err != nil {
		logger.Errorf("session: load snapshot: %v (starting empty)", err)
		return s
	}
	s.channels = dedupe(snap.ActiveChannels)
	s.requests = dedupe(snap.PrivateChatRequests)
	s.viewedRequests = dedupe(snap.ViewedRequests)
	s.viewedChats = dedupe(snap.ViewedChats)
	for _, c := range snap.PrivateChats {
		if c.DisplayName == "" || c.Channel == "" {
			continue
		}
		if s.ChatByName(c.DisplayName) == nil {
			s.chats = append(s.chats, c)
		}
	}
	return s
}

// assertID guards against non-identifier input, a programming error rather
// than a recoverable condition.
func assertID(id string) {
	if id == "" {
		panic("session: empty identifier")
	}
}

func dedupe(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) ([]string, bool) {
	for i, item := range list {
		if item == v {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// --- Channels ---

func (s *Store) HasChannel(name string) bool { return contains(s.channels, name) }

// Channels returns the active channels in insertion order.
func (s *Store) Channels() []string {
	out := make([]string, len(s.channels))
	copy(out, s.channels)
	return out
}

// AddChannel adds a channel to the active set. Reports whether it was newly
// added.
func (s *Store) AddChannel(name string) bool {
	assertID(name)
	if contains(s.channels, name) {
		return false
	}
	s.channels = append(s.channels, name)
	s.changed()
	return true
}

// RemoveChannel removes a channel. Reports whether it was present.
func (s *Store) RemoveChannel(name string) bool {
	assertID(name)
	rest, ok := remove(s.channels, name)
	if !ok {
		return false
	}
	s.channels = rest
	s.changed()
	return true
}

// ReplaceChannels replaces the active-channel set with the server-confirmed
// set (full replace, not incremental).
func (s *Store) ReplaceChannels(names []string) {
	s.channels = dedupe(names)
	s.changed()
}

// --- Private-chat requests ---

func (s *Store) HasRequest(from string) bool { return contains(s.requests, from) }

func (s *Store) Requests() []string {
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// AddRequest records a pending request from the named user, unviewed.
func (s *Store) AddRequest(from string) bool {
	assertID(from)
	if contains(s.requests, from) {
		return false
	}
	s.requests = append(s.requests, from)
	s.changed()
	return true
}

// RemoveRequest removes a pending request and prunes its viewed marker so a
// removed item's indicator cannot resurrect.
func (s *Store) RemoveRequest(from string) bool {
	assertID(from)
	rest, ok := remove(s.requests, from)
	viewed, vok := remove(s.viewedRequests, from)
	if !ok && !vok {
		return false
	}
	s.requests = rest
	s.viewedRequests = viewed
	s.changed()
	return ok
}

// ReplaceRequests replaces the pending-request set with the server-confirmed
// set, pruning viewed markers that no longer refer to a pending request.
func (s *Store) ReplaceRequests(from []string) {
	s.requests = dedupe(from)
	var viewed []string
	for _, v := range s.viewedRequests {
		if contains(s.requests, v) {
			viewed = append(viewed, v)
		}
	}
	s.viewedRequests = viewed
	s.changed()
}

// MarkRequestViewed clears the "new" indicator for a pending request.
func (s *Store) MarkRequestViewed(from string) {
	assertID(from)
	if !contains(s.requests, from) || contains(s.viewedRequests, from) {
		return
	}
	s.viewedRequests = append(s.viewedRequests, from)
	s.changed()
}

func (s *Store) RequestViewed(from string) bool { return contains(s.viewedRequests, from) }

// --- Private chats ---

// ChatByName returns the private chat with the given display name, or nil.
func (s *Store) ChatByName(name string) *model.PrivateChat {
	for i := range s.chats {
		if s.chats[i].DisplayName == name {
			c := s.chats[i]
			return &c
		}
	}
	return nil
}

// ChatByChannel returns the private chat with the given room identifier, or
// nil.
func (s *Store) ChatByChannel(channel string) *model.PrivateChat {
	for i := range s.chats {
		if s.chats[i].Channel == channel {
			c := s.chats[i]
			return &c
		}
	}
	return nil
}

func (s *Store) Chats() []model.PrivateChat {
	out := make([]model.PrivateChat, len(s.chats))
	copy(out, s.chats)
	return out
}

// AddChat adds a private chat, deduplicated by display name.
func (s *Store) AddChat(chat model.PrivateChat) bool {
	assertID(chat.DisplayName)
	assertID(chat.Channel)
	if s.ChatByName(chat.DisplayName) != nil {
		return false
	}
	s.chats = append(s.chats, chat)
	s.changed()
	return true
}

// RemoveChat removes the private chat with the given display name and prunes
// its viewed marker. Returns the removed chat, or nil if absent.
func (s *Store) RemoveChat(name string) *model.PrivateChat {
	assertID(name)
	for i := range s.chats {
		if s.chats[i].DisplayName == name {
			removed := s.chats[i]
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			s.viewedChats, _ = remove(s.viewedChats, name)
			s.changed()
			return &removed
		}
	}
	return nil
}

// RemoveChatByChannel removes the private chat with the given room
// identifier. Peer-initiated closes arrive keyed by channel, not name.
func (s *Store) RemoveChatByChannel(channel string) *model.PrivateChat {
	assertID(channel)
	for i := range s.chats {
		if s.chats[i].Channel == channel {
			return s.RemoveChat(s.chats[i].DisplayName)
		}
	}
	return nil
}

// MarkChatViewed clears the "new" indicator for a private chat.
func (s *Store) MarkChatViewed(name string) {
	assertID(name)
	if s.ChatByName(name) == nil || contains(s.viewedChats, name) {
		return
	}
	s.viewedChats = append(s.viewedChats, name)
	s.changed()
}

func (s *Store) ChatViewed(name string) bool { return contains(s.viewedChats, name) }

// --- Active conversation ---

// Active returns the active-conversation pointer, or nil when the idle view
// is showing.
func (s *Store) Active() *Active {
	if s.active == nil {
		return nil
	}
	a := *s.active
	return &a
}

// SetActive points the view at one conversation. The pointer is not part of
// the snapshot; a reload starts at the idle view.
func (s *Store) SetActive(kind Kind, id string) {
	assertID(id)
	s.active = &Active{Kind: kind, ID: id}
	s.notifier.StateChanged()
}

// ClearActive shows the idle view.
func (s *Store) ClearActive() {
	s.active = nil
	s.notifier.StateChanged()
}

// IsActive reports whether the given conversation is the active one.
func (s *Store) IsActive(kind Kind, id string) bool {
	return s.active != nil && s.active.Kind == kind && s.active.ID == id
}

// --- Persistence ---

func (s *Store) snapshot() model.Snapshot {
	return model.Snapshot{
		ActiveChannels:      s.Channels(),
		PrivateChatRequests: s.Requests(),
		ViewedRequests:      append([]string(nil), s.viewedRequests...),
		PrivateChats:        s.Chats(),
		ViewedChats:         append([]string(nil), s.viewedChats...),
	}
}

// changed persists the snapshot and signals the view. Persistence failures
// are logged, never surfaced: the snapshot is a cache of local truth.
func (s *Store) changed() {
	s.Flush()
	s.notifier.StateChanged()
}

// Flush persists the current snapshot. Called after every mutation and once
// more at teardown.
func (s *Store) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.snapshots.Save(ctx, s.snapshot()); err != nil {
		logger.Errorf("session: persist snapshot: %v", err)
	}
}
