package queue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// mintClaimToken generates a fresh, opaque claim token. Minted on every
// claim transition; required thereafter to mutate the task.
func mintClaimToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate claim token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
