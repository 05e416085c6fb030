// Package audit records security-relevant events of the sheet service:
// authentication outcomes, authorization denials, and grant administration.
// Per-cell content changes are not audited here; they live in the cell
// history records written by the mutation pipeline.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

// Event types.
const (
	EventTypeAuthentication EventType = "authentication"
	EventTypeAuthorization  EventType = "authorization"
	EventTypeAdministrative EventType = "administrative"
)

// Action represents the action being audited.
type Action string

// Actions.
const (
	// Authentication actions.
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"

	// Authorization actions.
	ActionAccess Action = "access"
	ActionDeny   Action = "deny"

	// Administrative actions.
	ActionGrantUpsert      Action = "grant_upsert"
	ActionGrantDelete      Action = "grant_delete"
	ActionGroupAccessApply Action = "group_access_apply"
	ActionAccessCopy       Action = "access_copy"
	ActionDocumentCreate   Action = "document_create"
	ActionDocumentDelete   Action = "document_delete"
	ActionTemplateCreate   Action = "template_create"
	ActionTemplateDelete   Action = "template_delete"
	ActionWebhookUpsert    Action = "webhook_upsert"
	ActionWebhookDelete    Action = "webhook_delete"
)

// Outcome represents the outcome of an audited action.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Subject is the user performing the audited action.
type Subject struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	RemoteIP  string `json:"remoteIp,omitempty"`
}

// Resource is what the action targeted.
type Resource struct {
	Type       string `json:"type,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	TargetUser string `json:"targetUser,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
}

// Event is one audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Action    Action         `json:"action"`
	Outcome   Outcome        `json:"outcome"`
	Subject   *Subject       `json:"subject,omitempty"`
	Resource  *Resource      `json:"resource,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent creates an event with the identity and timestamp filled in.
func NewEvent(eventType EventType, action Action, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Action:    action,
		Outcome:   outcome,
	}
}

// WithSubject sets the subject.
func (e *Event) WithSubject(subject *Subject) *Event {
	e.Subject = subject
	return e
}

// WithResource sets the resource.
func (e *Event) WithResource(resource *Resource) *Event {
	e.Resource = resource
	return e
}

// WithReason sets the human-readable reason, typically for failures.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithMetadata adds one metadata entry.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// AuthenticationEvent builds an authentication audit event.
func AuthenticationEvent(action Action, outcome Outcome, subject *Subject) *Event {
	return NewEvent(EventTypeAuthentication, action, outcome).WithSubject(subject)
}

// AuthorizationEvent builds an authorization audit event. Denied outcomes
// map to the deny action.
func AuthorizationEvent(outcome Outcome, subject *Subject, resource *Resource) *Event {
	action := ActionAccess
	if outcome == OutcomeDenied {
		action = ActionDeny
	}
	return NewEvent(EventTypeAuthorization, action, outcome).
		WithSubject(subject).
		WithResource(resource)
}

// AdministrativeEvent builds an administrative audit event for grant and
// document administration.
func AdministrativeEvent(action Action, outcome Outcome, subject *Subject, resource *Resource) *Event {
	return NewEvent(EventTypeAdministrative, action, outcome).
		WithSubject(subject).
		WithResource(resource)
}
