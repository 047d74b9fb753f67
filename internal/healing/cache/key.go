package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the deterministic cache fingerprint for a lookup. Equal
// (selector, description, contextHash) triples always produce equal keys;
// the hash keeps backend keys free of selector syntax.
func Key(selector, description, contextHash string) string {
	h := sha256.New()
	h.Write([]byte(selector))
	h.Write([]byte{0})
	h.Write([]byte(description))
	h.Write([]byte{0})
	h.Write([]byte(contextHash))
	return hex.EncodeToString(h.Sum(nil))
}
