package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

// IDKind selects the identifier representation used by a deployment.
// A deployment uses exactly one kind for every token and group.
type IDKind string

const (
	// IDKindSequential is a positive auto-incrementing integer.
	IDKindSequential IDKind = "sequential"

	// IDKindUUID is an RFC 4122 UUID string.
	IDKindUUID IDKind = "uuid"

	// IDKindULID is a lexicographically sortable ULID string.
	IDKindULID IDKind = "ulid"
)

// Valid reports whether k is a known identifier kind.
func (k IDKind) Valid() bool {
	switch k {
	case IDKindSequential, IDKindUUID, IDKindULID:
		return true
	default:
		return false
	}
}

// expectedType names the Go type accepted for manual assignment.
func (k IDKind) expectedType() string {
	if k == IDKindSequential {
		return "integer"
	}
	return "string"
}

// ID is an opaque token or group identifier tagged with its kind.
// The zero value is an unset identifier.
type ID struct {
	kind  IDKind
	value string
}

// Kind returns the identifier kind.
func (id ID) Kind() IDKind {
	return id.kind
}

// String returns the canonical textual form used on the wire and in storage.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return id.value == ""
}

// NewID validates a manually assigned identifier value against kind.
// Sequential identifiers accept Go integer types, UUID and ULID identifiers accept
// strings (or their native types). Anything else yields InvalidPrimaryKeyValueError.
func NewID(kind IDKind, value any) (ID, error) {
	switch kind {
	case IDKindSequential:
		n, ok := toInt64(value)
		if !ok || n <= 0 {
			return ID{}, &InvalidPrimaryKeyValueError{Expected: kind.expectedType(), Actual: fmt.Sprintf("%T", value)}
		}
		return ID{kind: kind, value: strconv.FormatInt(n, 10)}, nil
	case IDKindUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return ID{kind: kind, value: v.String()}, nil
		case string:
			return ParseID(kind, v)
		}
	case IDKindULID:
		switch v := value.(type) {
		case ulid.ULID:
			return ID{kind: kind, value: v.String()}, nil
		case string:
			return ParseID(kind, v)
		}
	default:
		return ID{}, &InvalidConfigurationError{Field: "id_kind", Constraint: "must be one of sequential, uuid, ulid"}
	}
	return ID{}, &InvalidPrimaryKeyValueError{Expected: kind.expectedType(), Actual: fmt.Sprintf("%T", value)}
}

// ParseID parses the textual form of an identifier of the given kind.
func ParseID(kind IDKind, s string) (ID, error) {
	invalid := &InvalidPrimaryKeyValueError{Expected: string(kind), Actual: "string"}

	switch kind {
	case IDKindSequential:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return ID{}, invalid
		}
		return ID{kind: kind, value: strconv.FormatInt(n, 10)}, nil
	case IDKindUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return ID{}, invalid
		}
		return ID{kind: kind, value: u.String()}, nil
	case IDKindULID:
		u, err := ulid.ParseStrict(s)
		if err != nil {
			return ID{}, invalid
		}
		return ID{kind: kind, value: u.String()}, nil
	default:
		return ID{}, &InvalidConfigurationError{Field: "id_kind", Constraint: "must be one of sequential, uuid, ulid"}
	}
}

// MustParseID is like ParseID but panics on error. Intended for tests and constants.
func MustParseID(kind IDKind, s string) ID {
	id, err := ParseID(kind, s)
	if err != nil {
		panic(err)
	}
	return id
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > 1<<63-1 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}
