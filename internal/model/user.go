package model

// User is a roster entry. Users are created on first observation and never
// deleted; going offline only flips the flag.
type User struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}
