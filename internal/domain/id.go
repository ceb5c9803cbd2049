package domain

import (
	"crypto/rand"
	"fmt"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLength   = 16
)

// NewItemID generates a 16-character alphanumeric item id. The 62^16 space
// makes collisions negligible without cross-instance coordination.
func NewItemID() (string, error) {
	// Rejection sampling keeps the distribution uniform: 248 is the largest
	// multiple of len(idAlphabet) below 256.
	const limit = 248

	id := make([]byte, 0, idLength)
	buf := make([]byte, idLength*2)
	for len(id) < idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == idLength {
				break
			}
		}
	}

	return string(id), nil
}
