package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Snapshot returns the provider key of a snapshot: "snap:<ns>:<program>:<key>".
// The program id scopes snapshots of different programs sharing one store.
func Snapshot(ns, program, key string) string {
	var b strings.Builder
	b.Grow(5 + len(ns) + 1 + len(program) + 1 + len(key))
	b.WriteString("snap:")
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(program)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// Redact returns a short stable digest of key for logs and metric labels.
func Redact(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
