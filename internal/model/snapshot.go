package model

// Snapshot is the durable projection of the session state, written after
// every mutation and read once at startup. The five collections are persisted
// as five independent keys so a single corrupt key only empties that one
// collection.
type Snapshot struct {
	ActiveChannels      []string      `json:"activeChannels"`
	PrivateChatRequests []string      `json:"privateChatRequests"`
	ViewedRequests      []string      `json:"viewedRequests"`
	PrivateChats        []PrivateChat `json:"privateChats"`
	ViewedChats         []string      `json:"viewedChats"`
}

// Key names of the five snapshot collections. They match the original
// session-storage keys and are part of the persistence format.
const (
	KeyActiveChannels      = "activeChannels"
	KeyPrivateChatRequests = "privateChatRequests"
	KeyViewedRequests      = "viewedRequests"
	KeyPrivateChats        = "privateChats"
	KeyViewedChats         = "viewedChats"
)
