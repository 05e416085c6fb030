// Package model defines the domain types of the sheet service: documents,
// cells, grants, change records, groups, users, templates, and webhook
// mappings.
package model

import "time"

// PermissionLevel is the access level of a grant.
type PermissionLevel string

// Permission levels, ranked read < write < admin < owner. Owner is implicit
// for a document's creator and is never stored in a grant.
const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
	PermissionOwner PermissionLevel = "owner"
)

// permissionRank orders permission levels for comparison.
var permissionRank = map[PermissionLevel]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
	PermissionOwner: 4,
}

// Valid reports whether the level is a known grantable level. Owner is not
// grantable.
func (p PermissionLevel) Valid() bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	}
	return false
}

// AtLeast reports whether p ranks at or above min.
func (p PermissionLevel) AtLeast(min PermissionLevel) bool {
	return permissionRank[p] >= permissionRank[min]
}

// Document is the shared spreadsheet-like resource being edited.
type Document struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	CreatorID   string         `json:"creatorId"`
	Public      bool           `json:"public"`
	Rows        int            `json:"rows"`
	Cols        int            `json:"cols"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Cell is a single addressable (row, column) unit of a document. Cells are
// created lazily on first write.
type Cell struct {
	DocumentID string            `json:"documentId"`
	Row        int               `json:"row"`
	Col        int               `json:"col"`
	Value      string            `json:"value"`
	Formula    string            `json:"formula,omitempty"`
	Format     map[string]string `json:"format,omitempty"`
	Locked     bool              `json:"locked"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Grant is a per-user, per-document permission record. At most one grant
// exists per (user, document) pair.
type Grant struct {
	UserID     string          `json:"userId"`
	DocumentID string          `json:"documentId"`
	Level      PermissionLevel `json:"level"`
	Rows       *RestrictionSet `json:"rows,omitempty"`
	Cols       *RestrictionSet `json:"cols,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// ChangeKind classifies a recorded cell change. Exactly one kind is recorded
// per change even when several fields move at once.
type ChangeKind string

// Change kinds.
const (
	ChangeCreate  ChangeKind = "create"
	ChangeValue   ChangeKind = "value"
	ChangeFormula ChangeKind = "formula"
	ChangeFormat  ChangeKind = "format"
	ChangeDelete  ChangeKind = "delete"
)

// CellChangeRecord is an immutable audit entry for one cell mutation.
type CellChangeRecord struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Row        int               `json:"row"`
	Col        int               `json:"col"`
	OldValue   string            `json:"oldValue,omitempty"`
	NewValue   string            `json:"newValue,omitempty"`
	OldFormula string            `json:"oldFormula,omitempty"`
	NewFormula string            `json:"newFormula,omitempty"`
	OldFormat  map[string]string `json:"oldFormat,omitempty"`
	NewFormat  map[string]string `json:"newFormat,omitempty"`
	ActorID    string            `json:"actorId"`
	Kind       ChangeKind        `json:"kind"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// User is an account known to the service. Credential issuance and
// verification live with the auth collaborator; the service only consults
// the Active flag and role.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	RoleID    string    `json:"roleId,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName returns a human-readable name for presence notifications.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Group is a named collection of users used for bulk grant administration.
// Membership is many-to-many: a user may belong to several groups.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TemplateCell is one pre-filled cell of a template.
type TemplateCell struct {
	Row    int               `json:"row"`
	Col    int               `json:"col"`
	Value  string            `json:"value"`
	Format map[string]string `json:"format,omitempty"`
}

// Template is a reusable document blueprint: dimensions plus pre-filled
// cells, typically headers. Instantiating a template produces an ordinary
// document owned by the caller.
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category"`
	Cells       []TemplateCell `json:"cells,omitempty"`
	Rows        int            `json:"rows"`
	Cols        int            `json:"cols"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// WebhookMapping routes inbound webhook payloads into a document. A payload
// is appended to every document whose active mapping lists the payload's
// key. At most one mapping exists per document.
type WebhookMapping struct {
	DocumentID string    `json:"documentId"`
	Keys       []string  `json:"keys"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Matches reports whether the mapping routes payloads with the given key.
func (m *WebhookMapping) Matches(key string) bool {
	for _, k := range m.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// EffectivePermission is the resolved access of a user on a document.
type EffectivePermission struct {
	Level PermissionLevel `json:"level"`
	Rows  *RestrictionSet `json:"rows,omitempty"`
	Cols  *RestrictionSet `json:"cols,omitempty"`
}

// Unrestricted reports whether the permission carries no row or column
// restriction.
func (p EffectivePermission) Unrestricted() bool {
	return p.Rows == nil && p.Cols == nil
}

// CellAccess is the result of a per-cell access check.
type CellAccess struct {
	Allowed bool            `json:"allowed"`
	Level   PermissionLevel `json:"level"`
}
