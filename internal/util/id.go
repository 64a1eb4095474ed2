package util

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TimestampedKey returns an object-storage key segment that sorts by creation
// time, with a random suffix against same-second collisions.
func TimestampedKey() string {
	bytes := make([]byte, 6)
	_, _ = rand.Read(bytes)
	return time.Now().UTC().Format("20060102T150405Z") + "-" + hex.EncodeToString(bytes)
}
