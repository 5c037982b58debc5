// Package domain defines the token lifecycle domain model: tokens, groups, audit
// entries, identifiers and the typed errors raised by the guard and the strategies.
package domain

// WildcardAbility grants every ability.
const WildcardAbility = "*"

// HierarchyParent is the parent→child derivation hierarchy.
const HierarchyParent = "parent"

// Plaintext segment delimiter and lookup hint separator.
const (
	SegmentDelimiter = "_"
	LookupSeparator  = "|"
)

// Audit metadata keys lifted into dedicated audit log columns.
const (
	AuditKeyIPAddress = "ip_address"
	AuditKeyUserAgent = "user_agent"
	AuditKeyRequestID = "request_id"
)
