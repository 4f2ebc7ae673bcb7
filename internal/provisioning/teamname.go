package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/classytest/dispatcher/internal/store"
)

// maxNameAttempts bounds the collision-retry loop so a pathological
// store (every name taken) fails loudly instead of spinning forever.
const maxNameAttempts = 50

// randomTeamName samples a 6-character hex token from a
// cryptographically strong RNG and retries until store reports it
// unused (spec §4.E Paired D1).
func randomTeamName(ctx context.Context, s store.Store) (string, error) {
	buf := make([]byte, 3) // 3 bytes -> 6 hex chars
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate team name: %w", err)
		}
		name := hex.EncodeToString(buf)
		taken, err := s.TeamNameTaken(ctx, name)
		if err != nil {
			return "", fmt.Errorf("check team name %q: %w", name, err)
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("exhausted %d attempts generating a unique team name", maxNameAttempts)
}
