package model

// ChatMessage mirrors the server's message payload. Timestamp is the server's
// string representation and is passed through untouched.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}
