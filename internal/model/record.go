// Package model defines the core record data types.
package model

import "strings"

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Record is a submitted biomedical value. EncryptedData always holds a token,
// never the plaintext.
type Record struct {
	ID            string `json:"id"`
	EncryptedData string `json:"encryptedData"`
	Timestamp     int64  `json:"timestamp"`
	Owner         string `json:"owner"`
	Category      string `json:"category"`
	Description   string `json:"description,omitempty"`
	Status        Status `json:"status"`
}

// ValidCategories are the allowed record categories.
var ValidCategories = map[string]bool{
	"Genetic":   true,
	"Biometric": true,
	"Clinical":  true,
	"Health":    true,
	"Other":     true,
}

// ValidStatuses are the known record states.
var ValidStatuses = map[Status]bool{
	StatusPending:  true,
	StatusVerified: true,
	StatusRejected: true,
}

// SameIdentity compares two identities case-insensitively. Empty identities
// never match.
func SameIdentity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
