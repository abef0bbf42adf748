package uast

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// HashContent computes the BLAKE3 hex digest used as a file's cache key.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Qualify joins a module path, container chain and name into a qualified name.
func Qualify(module, container, name string) string {
	var b strings.Builder
	if module != "" {
		b.WriteString(module)
		b.WriteByte('.')
	}
	if container != "" {
		b.WriteString(container)
		b.WriteByte('.')
	}
	b.WriteString(name)
	return b.String()
}
