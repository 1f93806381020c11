package transport

// Event names and payload field names are the wire contract with the server
// and must not be renamed.

// Outbound events.
const (
	EventJoin                 = "join"
	EventLeave                = "leave"
	EventMessage              = "message"
	EventRequestPrivateChat   = "request_private_chat"
	EventAcceptPrivateChat    = "accept_private_chat"
	EventClosePrivateChat     = "close_private_chat"
	EventRejoinChannels       = "rejoin_channels"
	EventCheckPrivateRequests = "check_private_requests"
	EventRefresh              = "refresh"
)

// Inbound events.
const (
	EventLoadMessages                 = "load_messages"
	EventNewMessage                   = "new_message"
	EventUserStatus                   = "user_status"
	EventRemoveRequest                = "remove_request"
	EventStartPrivateChat             = "start_private_chat"
	EventRejoinChannelsResponse       = "rejoin_channels_response"
	EventCheckPrivateRequestsResponse = "check_private_requests_response"
	EventStatus                       = "status"
)

// JoinPayload is sent when a conversation's room is entered.
type JoinPayload struct {
	Channel string `json:"channel"`
}

// LeavePayload is sent when a channel is explicitly closed.
type LeavePayload struct {
	Channel string `json:"channel"`
}

// MessagePayload carries an outbound chat message.
type MessagePayload struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// PrivatePairPayload names the two parties of a private-chat request or
// acceptance.
type PrivatePairPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ClosePrivateChatPayload notifies the peer that a private chat was closed.
type ClosePrivateChatPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Channel string `json:"channel"`
}

// RejoinChannelsPayload opens the reconnect handshake with the full locally
// known channel set.
type RejoinChannelsPayload struct {
	Username string   `json:"username"`
	Channels []string `json:"channels"`
}

// CheckPrivateRequestsPayload asks the server for pending requests on
// reconnect.
type CheckPrivateRequestsPayload struct {
	Username string `json:"username"`
}

// NewMessagePayload is a message broadcast into a joined room.
type NewMessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Channel  string `json:"channel"`
}

// UserStatusPayload announces a user going online or offline.
type UserStatusPayload struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// RemoveRequestPayload is a server-confirmed withdrawal of a pending
// request.
type RemoveRequestPayload struct {
	Request string `json:"request"`
}

// StartPrivateChatPayload confirms a private chat between the named parties.
type StartPrivateChatPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Channel string `json:"channel"`
}

// RejoinChannelsResponsePayload is the server-confirmed channel set; the
// local set is replaced wholesale.
type RejoinChannelsResponsePayload struct {
	Channels []string `json:"channels"`
}

// CheckPrivateRequestsResponsePayload is the server-confirmed pending
// request set.
type CheckPrivateRequestsResponsePayload struct {
	Requests []string `json:"requests"`
}

// StatusPayload is the connection acknowledgement; log-only.
type StatusPayload struct {
	Msg string `json:"msg"`
}
