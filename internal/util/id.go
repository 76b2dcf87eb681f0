package util

import (
	"github.com/google/uuid"

	"github.com/jo-hoe/insightboard/internal/common"
)

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// NewLocalID returns an id for a client-synthesized record.
// Format: local-xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
func NewLocalID() string {
	return common.LocalIDPrefix + uuid.NewString()
}
