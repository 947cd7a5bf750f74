// Package idgen generates the identifiers used for configuration
// generations, request traces and injected element ids.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator of base-36 ids of the given length. The ids
// start with a letter so they are valid HTML id values.
func NanoID(length int) Generator {
	const (
		letters  = "abcdefghijklmnopqrstuvwxyz"
		alphabet = "0123456789" + letters
	)
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		b := make([]byte, length)
		for i := range b {
			if i == 0 {
				b[i] = letters[int(buf[i])%len(letters)]
				continue
			}
			b[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(b)
	}
}

// Prefixed prepends prefix to every id produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is used where no Generator is configured.
var Default Generator = UUIDv7()

// New produces an id with Default.
func New() string { return Default() }
