package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique 128-bit session ID
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateStreamID generates a unique 128-bit stream ID
func GenerateStreamID() string {
	return uuid.NewString()
}

// GeneratePeerID generates a unique peer ID
func GeneratePeerID() string {
	return uuid.NewString()
}

// MasterKeyID returns the key store ID for a session's SRTP master key
func MasterKeyID(sessionID string) string {
	return fmt.Sprintf("srtp:master_key:%s", sessionID)
}

// MasterSaltID returns the key store ID for a session's SRTP master salt
func MasterSaltID(sessionID string) string {
	return fmt.Sprintf("srtp:master_salt:%s", sessionID)
}

// ValidID reports whether s is a well-formed UUID identifier.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
