package common

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// MD5Hex returns the lowercase hex MD5 of s. Used for dedup keys and
// article ids; not a security boundary.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
