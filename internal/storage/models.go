package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BootupEntry is a persisted control-file write, replayed at startup.
type BootupEntry struct {
	ID        string
	Category  string
	Key       string
	Path      string
	Value     string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
