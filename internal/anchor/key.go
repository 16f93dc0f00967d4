package anchor

import (
	"fmt"
	"strings"
)

// keySep separates the anchored id from the role in a key's text form.
const keySep = "#"

// Key identifies one attachment: an anchored element and the role it plays,
// such as the start or end of a connection. Keys are comparable values.
type Key struct {
	anchoredID string
	role       string
}

// NewKey returns a key for the given anchored element id and role. Both must
// be non-empty and the id must not contain "#".
func NewKey(anchoredID, role string) (Key, error) {
	if anchoredID == "" || role == "" {
		return Key{}, fmt.Errorf("%w: anchored id %q, role %q", ErrInvalidKey, anchoredID, role)
	}
	if strings.Contains(anchoredID, keySep) {
		return Key{}, fmt.Errorf("%w: anchored id %q contains %q", ErrInvalidKey, anchoredID, keySep)
	}
	return Key{anchoredID: anchoredID, role: role}, nil
}

// MustKey is like NewKey but panics on invalid input.
func MustKey(anchoredID, role string) Key {
	k, err := NewKey(anchoredID, role)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) AnchoredID() string { return k.anchoredID }

func (k Key) Role() string { return k.role }

// IsZero reports whether k is the zero Key, which is never valid.
func (k Key) IsZero() bool { return k.anchoredID == "" && k.role == "" }

func (k Key) String() string {
	return k.anchoredID + keySep + k.role
}

// MarshalText encodes the key as "anchoredID#role" so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	if k.anchoredID == "" || k.role == "" {
		return nil, ErrInvalidKey
	}
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	id, role, ok := strings.Cut(string(text), keySep)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKey, text)
	}
	parsed, err := NewKey(id, role)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func compareKeys(a, b Key) int {
	if c := strings.Compare(a.anchoredID, b.anchoredID); c != 0 {
		return c
	}
	return strings.Compare(a.role, b.role)
}
