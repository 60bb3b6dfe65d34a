// Package keys builds the storage keys shared by the fast tier backends.
package keys

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// maxValue is the longest index value embedded verbatim in a key.
const maxValue = 64

// Row returns the key of one row: <ns>:<model>:<id>.
func Row(ns, model, id string) string {
	return join(ns, model, id)
}

// Index returns the key of one index pointer: <ns>:idx:<model>:<attr>:<value>.
// Long values are replaced by a short hash so keys stay bounded.
func Index(ns, model, attr, value string) string {
	return join(ns, "idx", model, attr, Compact(value))
}

// Compact returns value unchanged when short, otherwise "#" and the first 16
// hex chars of its sha256.
func Compact(value string) string {
	if len(value) <= maxValue {
		return value
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("#%x", sum)[:1+16]
}

// Prefix returns the prefix shared by every key of ns.
func Prefix(ns string) string {
	if ns == "" {
		return ""
	}
	return ns + ":"
}

func join(parts ...string) string {
	if parts[0] == "" {
		parts = parts[1:]
	}
	return strings.Join(parts, ":")
}
