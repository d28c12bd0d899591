package txn

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeriveID computes a transaction id from the content of a new manifest's
// canonical hash, taking its first eight hex characters (spec §4.4.3):
// "Using content-derived ids eliminates collisions among concurrent clients
// attempting the same logical commit."
func DeriveID(manifestHash string) ID {
	if len(manifestHash) >= 8 {
		return ID(manifestHash[:8])
	}
	return ID(manifestHash)
}

// RandomID produces a transaction id for operations that don't produce a
// new manifest (spec §4.4.3: "otherwise a timestamp plus randomness").
func RandomID() ID {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is exceptional; fall back to a uuid, which
		// draws from the same entropy source.
		return ID(fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8]))
	}
	return ID(fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(buf[:])))
}
