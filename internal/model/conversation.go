package model

import (
	"sort"
	"strings"
)

// PrivateChat is a one-to-one conversation. DisplayName is the other party's
// username; Channel is the wire-level room identifier shared by both parties.
type PrivateChat struct {
	DisplayName string `json:"displayName"`
	Channel     string `json:"channel"`
}

// PrivateChannel returns the room identifier for a private chat between two
// users: the usernames sorted lexicographically, joined with "_". Both parties
// derive the same identifier without coordination.
func PrivateChannel(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}
