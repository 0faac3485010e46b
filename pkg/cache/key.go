package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached upstream result.
type Key struct {
	// Kind is the resource kind (e.g., "profile", "player_count")
	Kind string

	// Args are the positional arguments in call order (e.g., a Steam ID and an app ID)
	Args []string

	// Params are keyword arguments; their order never affects the key
	Params map[string]string
}

// NewKey builds a key from a resource kind and positional arguments.
func NewKey(kind string, args ...string) Key {
	return Key{Kind: kind, Args: args}
}

// WithParam returns a copy of the key with an additional keyword argument.
func (k Key) WithParam(name, value string) Key {
	params := make(map[string]string, len(k.Params)+1)
	for n, v := range k.Params {
		params[n] = v
	}
	params[name] = value
	k.Params = params
	return k
}

// String generates a deterministic, human-readable key.
// Format: steam:kind:arg1:arg2:param1=val1:param2=val2
//
// Components are query-escaped so a ':' inside an argument cannot collide
// with the separator.
//
// Example:
//
//	steam:achievements:76561197960287930:440:lang=en
func (k Key) String() string {
	// The kind is always present so an empty kind cannot shift the args
	parts := []string{"steam", url.QueryEscape(strings.TrimSpace(k.Kind))}

	for _, arg := range k.Args {
		parts = append(parts, url.QueryEscape(arg))
	}

	// Add params (sorted for determinism)
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// Digest returns the SHA-256 hex digest of String(). It is the storage key
// used by the façade.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}
