package propagate

import (
	"crypto/rand"
	"encoding/hex"
)

// randomHex returns n random bytes hex-encoded, used for transfer ids and
// the hidden temp-file suffix.
func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
