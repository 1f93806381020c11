package lifecycle

import (
	"context"
	"testing"

	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/session"
	"github.com/chatsphere/internal/storage/memory"
	"github.com/chatsphere/internal/transport"
	"github.com/chatsphere/internal/view"
)

type emittedEvent struct {
	Event string
	Data  any
}

type fakeEmitter struct {
	events []emittedEvent
}

func (f *fakeEmitter) Emit(event string, data any) {
	f.events = append(f.events, emittedEvent{Event: event, Data: data})
}

func (f *fakeEmitter) reset() { f.events = nil }

func (f *fakeEmitter) names() []string {
	names := make([]string, 0, len(f.events))
	for _, e := range f.events {
		names = append(names, e.Event)
	}
	return names
}

type fakeSink struct {
	cleared  int
	appended []model.ChatMessage
	history  []model.ChatMessage
	replaced int
}

func (f *fakeSink) Clear() { f.cleared++ }

func (f *fakeSink) History(msgs []model.ChatMessage) {
	f.replaced++
	f.history = msgs
}

func (f *fakeSink) Append(msg model.ChatMessage) {
	f.appended = append(f.appended, msg)
}

func newTestMachine(t *testing.T, username string) (*Machine, *fakeEmitter, *fakeSink) {
	t.Helper()
	store := session.New(context.Background(), memory.New(), view.NopNotifier{})
	emitter := &fakeEmitter{}
	sink := &fakeSink{}
	return New(username, false, store, emitter, sink), emitter, sink
}

func TestOpenChannelEmitsJoinAndActivates(t *testing.T) {
	m, emitter, sink := newTestMachine(t, "alice")

	m.OpenChannel("general")

	names := emitter.names()
	if len(names) != 2 || names[0] != transport.EventJoin || names[1] != transport.EventJoin {
		t.Errorf("expected two join events (add then activate), got %v", names)
	}
	if sink.cleared != 1 {
		t.Errorf("expected 1 pane clear, got %d", sink.cleared)
	}

	vs := m.ViewState()
	if vs.Active == nil || vs.Active.Kind != session.KindChannel || vs.Active.ID != "general" {
		t.Errorf("expected general active, got %+v", vs.Active)
	}
	if !vs.InputEnabled {
		t.Error("channel view should accept input")
	}
}

func TestOpenChannelIdempotent(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	emitter.reset()

	m.OpenChannel("general")

	if len(emitter.events) != 0 {
		t.Errorf("reopening the active channel should emit nothing, got %v", emitter.names())
	}
	if vs := m.ViewState(); len(vs.Channels) != 1 {
		t.Errorf("expected one channel, got %v", vs.Channels)
	}
}

func TestCloseChannelFallsBackToFirst(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.OpenChannel("random")
	emitter.reset()

	m.CloseChannel("random")

	names := emitter.names()
	if len(names) != 2 || names[0] != transport.EventLeave || names[1] != transport.EventJoin {
		t.Errorf("expected [leave join], got %v", names)
	}
	vs := m.ViewState()
	if vs.Active == nil || vs.Active.ID != "general" {
		t.Errorf("expected fallback to general, got %+v", vs.Active)
	}
}

func TestCloseLastChannelGoesIdle(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	emitter.reset()

	m.CloseChannel("general")

	vs := m.ViewState()
	if vs.Active != nil {
		t.Errorf("expected idle view, got %+v", vs.Active)
	}
	if vs.InputEnabled {
		t.Error("idle view should not accept input")
	}
	names := emitter.names()
	if len(names) != 1 || names[0] != transport.EventLeave {
		t.Errorf("expected only leave, got %v", names)
	}
}

func TestCloseInactiveChannelKeepsActive(t *testing.T) {
	m, _, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.OpenChannel("random")

	m.CloseChannel("general")

	vs := m.ViewState()
	if vs.Active == nil || vs.Active.ID != "random" {
		t.Errorf("expected random to stay active, got %+v", vs.Active)
	}
}

func TestCloseAbsentChannelNoop(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.CloseChannel("ghost")
	if len(emitter.events) != 0 {
		t.Errorf("expected no events, got %v", emitter.names())
	}
}

func TestIncomingRequestMarkedUnread(t *testing.T) {
	m, _, _ := newTestMachine(t, "bob")

	m.ApplyIncomingRequest("alice", "bob")

	vs := m.ViewState()
	if len(vs.Requests) != 1 || vs.Requests[0].From != "alice" || !vs.Requests[0].Unread {
		t.Errorf("expected one unread request from alice, got %+v", vs.Requests)
	}
}

func TestIncomingRequestWrongTargetIgnored(t *testing.T) {
	m, _, _ := newTestMachine(t, "bob")

	m.ApplyIncomingRequest("alice", "carol")
	m.ApplyIncomingRequest("bob", "bob")

	if vs := m.ViewState(); len(vs.Requests) != 0 {
		t.Errorf("expected no requests, got %+v", vs.Requests)
	}
}

func TestIncomingRequestDeduplicated(t *testing.T) {
	m, _, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	m.ApplyIncomingRequest("alice", "bob")
	if vs := m.ViewState(); len(vs.Requests) != 1 {
		t.Errorf("expected one request, got %+v", vs.Requests)
	}

	m.AcceptRequest("alice")
	m.ApplyIncomingRequest("alice", "bob")
	if vs := m.ViewState(); len(vs.Requests) != 0 {
		t.Errorf("request should be dropped while a chat with alice exists, got %+v", vs.Requests)
	}
}

func TestSelectRequestMarksViewedWithoutJoin(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	emitter.reset()

	m.SelectRequest("alice")

	if len(emitter.events) != 0 {
		t.Errorf("viewing a request must not emit, got %v", emitter.names())
	}
	vs := m.ViewState()
	if len(vs.Requests) != 1 || vs.Requests[0].Unread {
		t.Errorf("expected request marked viewed, got %+v", vs.Requests)
	}
	if vs.Active == nil || vs.Active.Kind != session.KindRequest {
		t.Errorf("expected request active, got %+v", vs.Active)
	}
	if vs.InputEnabled || !vs.ShowAccept {
		t.Errorf("request view: input off, accept on; got input=%v accept=%v", vs.InputEnabled, vs.ShowAccept)
	}
}

func TestAcceptRequestCreatesViewedChat(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	emitter.reset()

	m.AcceptRequest("alice")

	names := emitter.names()
	if len(names) != 2 || names[0] != transport.EventAcceptPrivateChat || names[1] != transport.EventJoin {
		t.Errorf("expected [accept_private_chat join], got %v", names)
	}
	accept, ok := emitter.events[0].Data.(transport.PrivatePairPayload)
	if !ok || accept.From != "alice" || accept.To != "bob" {
		t.Errorf("expected accept payload from=alice to=bob, got %+v", emitter.events[0].Data)
	}
	join, ok := emitter.events[1].Data.(transport.JoinPayload)
	if !ok || join.Channel != "alice_bob" {
		t.Errorf("expected join alice_bob, got %+v", emitter.events[1].Data)
	}

	vs := m.ViewState()
	if len(vs.Requests) != 0 {
		t.Errorf("request should be consumed, got %+v", vs.Requests)
	}
	if len(vs.Chats) != 1 || vs.Chats[0].DisplayName != "alice" || vs.Chats[0].Channel != "alice_bob" {
		t.Errorf("expected chat alice/alice_bob, got %+v", vs.Chats)
	}
	if vs.Chats[0].Unread {
		t.Error("accepting side opens the chat, it should not be unread")
	}
	if vs.Active == nil || vs.Active.Kind != session.KindChat || vs.Active.ID != "alice" {
		t.Errorf("expected chat alice active, got %+v", vs.Active)
	}
}

func TestAcceptAbsentRequestNoop(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.AcceptRequest("alice")
	if len(emitter.events) != 0 {
		t.Errorf("expected no events, got %v", emitter.names())
	}
}

func TestStartPrivateChatForRequester(t *testing.T) {
	m, _, _ := newTestMachine(t, "alice")

	m.ApplyStartPrivateChat("alice", "bob", "alice_bob")

	vs := m.ViewState()
	if len(vs.Chats) != 1 || vs.Chats[0].DisplayName != "bob" {
		t.Errorf("expected chat with bob, got %+v", vs.Chats)
	}
	if !vs.Chats[0].Unread {
		t.Error("requester side has not opened the chat, it should be unread")
	}
	if vs.Active != nil {
		t.Errorf("confirmation must not steal focus, got %+v", vs.Active)
	}
}

func TestStartPrivateChatPrunesStaleRequests(t *testing.T) {
	m, _, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")

	m.ApplyStartPrivateChat("alice", "bob", "alice_bob")

	vs := m.ViewState()
	if len(vs.Requests) != 0 {
		t.Errorf("stale request should be pruned, got %+v", vs.Requests)
	}
	if len(vs.Chats) != 1 || vs.Chats[0].DisplayName != "alice" {
		t.Errorf("expected chat with alice, got %+v", vs.Chats)
	}
}

func TestStartPrivateChatForStrangerIgnored(t *testing.T) {
	m, _, _ := newTestMachine(t, "carol")
	m.ApplyStartPrivateChat("alice", "bob", "alice_bob")
	if vs := m.ViewState(); len(vs.Chats) != 0 {
		t.Errorf("expected no chats, got %+v", vs.Chats)
	}
}

func TestCloseChatNotifiesPeer(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	m.AcceptRequest("alice")
	emitter.reset()

	m.CloseChat("alice")

	names := emitter.names()
	if len(names) != 2 || names[0] != transport.EventLeave || names[1] != transport.EventClosePrivateChat {
		t.Errorf("expected [leave close_private_chat], got %v", names)
	}
	closeP, ok := emitter.events[1].Data.(transport.ClosePrivateChatPayload)
	if !ok || closeP.From != "bob" || closeP.To != "alice" || closeP.Channel != "alice_bob" {
		t.Errorf("unexpected close payload %+v", emitter.events[1].Data)
	}
	vs := m.ViewState()
	if len(vs.Chats) != 0 {
		t.Errorf("chat should be removed, got %+v", vs.Chats)
	}
	if vs.Active != nil {
		t.Errorf("no channels remain, expected idle, got %+v", vs.Active)
	}
}

func TestPeerCloseRemovesSilently(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.ApplyStartPrivateChat("alice", "bob", "alice_bob")
	m.SelectChat("bob")
	emitter.reset()

	m.ApplyPeerClose("bob", "alice", "alice_bob")

	vs := m.ViewState()
	if len(vs.Chats) != 0 {
		t.Errorf("chat should be removed, got %+v", vs.Chats)
	}
	if vs.Active == nil || vs.Active.ID != "general" {
		t.Errorf("expected fallback to general, got %+v", vs.Active)
	}
	names := emitter.names()
	if len(names) != 1 || names[0] != transport.EventJoin {
		t.Errorf("peer close must not echo a close, only the fallback join; got %v", names)
	}
}

func TestPeerCloseUnknownChannelNoop(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.ApplyPeerClose("bob", "alice", "alice_bob")
	if len(emitter.events) != 0 {
		t.Errorf("expected no events, got %v", emitter.names())
	}
}

func TestRequestPrivateChatEmitsOnce(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")

	m.RequestPrivateChat("bob")
	m.RequestPrivateChat("alice")
	m.RequestPrivateChat("")

	names := emitter.names()
	if len(names) != 1 || names[0] != transport.EventRequestPrivateChat {
		t.Errorf("expected one request_private_chat, got %v", names)
	}
	pair, ok := emitter.events[0].Data.(transport.PrivatePairPayload)
	if !ok || pair.From != "alice" || pair.To != "bob" {
		t.Errorf("expected from=alice to=bob, got %+v", emitter.events[0].Data)
	}
}

func TestRequestPrivateChatDedupAgainstChat(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.ApplyStartPrivateChat("alice", "bob", "alice_bob")
	emitter.reset()

	m.RequestPrivateChat("bob")

	if len(emitter.events) != 0 {
		t.Errorf("re-requesting an active chat partner should emit nothing, got %v", emitter.names())
	}
}

func TestSendMessageToActiveChannel(t *testing.T) {
	m, emitter, sink := newTestMachine(t, "alice")
	m.OpenChannel("general")
	emitter.reset()

	m.SendMessage("  hello there  ")

	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %v", emitter.names())
	}
	msg, ok := emitter.events[0].Data.(transport.MessagePayload)
	if !ok || msg.Channel != "general" || msg.Message != "hello there" {
		t.Errorf("expected trimmed message to general, got %+v", emitter.events[0].Data)
	}
	if len(sink.appended) != 1 || sink.appended[0].Username != "alice" || sink.appended[0].Message != "hello there" {
		t.Errorf("expected local echo, got %+v", sink.appended)
	}
}

func TestSendMessageToPrivateChatUsesRoom(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	m.AcceptRequest("alice")
	emitter.reset()

	m.SendMessage("hi")

	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %v", emitter.names())
	}
	msg := emitter.events[0].Data.(transport.MessagePayload)
	if msg.Channel != "alice_bob" {
		t.Errorf("expected room alice_bob, got %q", msg.Channel)
	}
}

func TestSendMessageGating(t *testing.T) {
	m, emitter, sink := newTestMachine(t, "bob")

	m.SendMessage("into the void")
	if len(emitter.events) != 0 {
		t.Errorf("no active conversation: expected no events, got %v", emitter.names())
	}

	m.ApplyIncomingRequest("alice", "bob")
	m.SelectRequest("alice")
	m.SendMessage("too early")
	if len(emitter.events) != 0 {
		t.Errorf("pending request takes no input, got %v", emitter.names())
	}

	m.OpenChannel("general")
	emitter.reset()
	m.SendMessage("   ")
	if len(emitter.events) != 0 || len(sink.appended) != 0 {
		t.Error("whitespace-only message should be dropped")
	}
}

func TestRejoinReplacesChannelsAndRejoinsActive(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.OpenChannel("random")
	m.SelectChannel("general")
	emitter.reset()

	m.ApplyRejoinChannels([]string{"general"})

	vs := m.ViewState()
	if len(vs.Channels) != 1 || vs.Channels[0] != "general" {
		t.Errorf("expected exactly [general], got %v", vs.Channels)
	}
	names := emitter.names()
	if len(names) != 1 || names[0] != transport.EventJoin {
		t.Errorf("surviving active channel should re-join, got %v", names)
	}
}

func TestRejoinEvictsActiveChannel(t *testing.T) {
	m, _, _ := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.OpenChannel("random")

	m.ApplyRejoinChannels([]string{"general"})

	vs := m.ViewState()
	if vs.Active == nil || vs.Active.ID != "general" {
		t.Errorf("evicted active channel should fall back, got %+v", vs.Active)
	}
}

func TestRejoinLeavesPrivateChatActive(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.OpenChannel("general")
	m.ApplyIncomingRequest("alice", "bob")
	m.AcceptRequest("alice")
	emitter.reset()

	m.ApplyRejoinChannels([]string{"random"})

	vs := m.ViewState()
	if vs.Active == nil || vs.Active.Kind != session.KindChat || vs.Active.ID != "alice" {
		t.Errorf("channel reconciliation must not touch a private-chat active, got %+v", vs.Active)
	}
	if len(emitter.events) != 0 {
		t.Errorf("expected no events, got %v", emitter.names())
	}
}

func TestPendingRequestsReplaced(t *testing.T) {
	m, _, _ := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	m.SelectRequest("alice")

	m.ApplyPendingRequests([]string{"carol"})

	vs := m.ViewState()
	if len(vs.Requests) != 1 || vs.Requests[0].From != "carol" {
		t.Errorf("expected [carol], got %+v", vs.Requests)
	}
	if !vs.Requests[0].Unread {
		t.Error("a newly confirmed request should be unread")
	}
	if vs.Active != nil {
		t.Errorf("active pointing at a removed request should render idle, got %+v", vs.Active)
	}
}

func TestNewMessageRouting(t *testing.T) {
	m, _, sink := newTestMachine(t, "alice")
	m.OpenChannel("general")
	m.OpenChannel("random")
	m.SelectChannel("general")

	m.ApplyNewMessage("bob", "in random", "random")
	if len(sink.appended) != 0 {
		t.Errorf("message for an inactive room should not render, got %+v", sink.appended)
	}

	m.ApplyNewMessage("bob", "in general", "general")
	if len(sink.appended) != 1 || sink.appended[0].Message != "in general" {
		t.Errorf("expected the active-room message, got %+v", sink.appended)
	}

	m.ApplyNewMessage("alice", "my own echo", "general")
	if len(sink.appended) != 1 {
		t.Errorf("own echo should be filtered, got %+v", sink.appended)
	}

	m.ApplyNewMessage("ghost", "unknown room", "nowhere")
	if len(sink.appended) != 1 {
		t.Errorf("unknown room should be dropped, got %+v", sink.appended)
	}
}

func TestNewMessageMapsPrivateRoomToDisplayName(t *testing.T) {
	m, _, sink := newTestMachine(t, "bob")
	m.ApplyIncomingRequest("alice", "bob")
	m.AcceptRequest("alice")

	m.ApplyNewMessage("alice", "hi bob", "alice_bob")

	if len(sink.appended) != 1 || sink.appended[0].Username != "alice" {
		t.Errorf("expected alice's message in the active chat, got %+v", sink.appended)
	}
}

func TestLoadMessagesReplacesPane(t *testing.T) {
	m, _, sink := newTestMachine(t, "alice")
	backlog := []model.ChatMessage{{Username: "bob", Message: "old", Timestamp: "12:00:00"}}

	m.ApplyLoadMessages(backlog)
	if sink.replaced != 0 {
		t.Error("backlog without an active conversation should be dropped")
	}

	m.OpenChannel("general")
	m.ApplyLoadMessages(backlog)
	if sink.replaced != 1 || len(sink.history) != 1 {
		t.Errorf("expected pane replaced with backlog, got replaced=%d history=%v", sink.replaced, sink.history)
	}
}

func TestHandleConnectHandshake(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "bob")
	m.OpenChannel("general")
	m.ApplyIncomingRequest("alice", "bob")
	m.AcceptRequest("alice")
	emitter.reset()

	m.HandleConnect()

	names := emitter.names()
	if len(names) != 3 {
		t.Fatalf("expected 3 handshake events, got %v", names)
	}
	if names[0] != transport.EventRejoinChannels || names[1] != transport.EventCheckPrivateRequests || names[2] != transport.EventJoin {
		t.Errorf("expected [rejoin_channels check_private_requests join], got %v", names)
	}
	rejoin := emitter.events[0].Data.(transport.RejoinChannelsPayload)
	if rejoin.Username != "bob" || len(rejoin.Channels) != 1 || rejoin.Channels[0] != "general" {
		t.Errorf("unexpected rejoin payload %+v", rejoin)
	}
	join := emitter.events[2].Data.(transport.JoinPayload)
	if join.Channel != "alice_bob" {
		t.Errorf("expected private room re-join, got %+v", join)
	}
}

func TestHandleConnectSkippedWhenLoggedOut(t *testing.T) {
	store := session.New(context.Background(), memory.New(), view.NopNotifier{})
	emitter := &fakeEmitter{}
	m := New("bob", true, store, emitter, &fakeSink{})

	m.HandleConnect()

	if len(emitter.events) != 0 {
		t.Errorf("logged-out session must not handshake, got %v", emitter.names())
	}
}

func TestShutdownEmitsRefresh(t *testing.T) {
	m, emitter, _ := newTestMachine(t, "alice")
	m.Shutdown()
	names := emitter.names()
	if len(names) != 1 || names[0] != transport.EventRefresh {
		t.Errorf("expected [refresh], got %v", names)
	}
}
