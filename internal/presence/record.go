// Package presence tracks which collaborators are connected, what they are
// doing and where, and detects disappearance without manual signoff.
// State is ephemeral and best-effort: nothing here is authoritative for
// document content.
package presence

import "strings"

// Activity describes what a collaborator is currently doing.
type Activity string

const (
	ActivityIdle          Activity = "idle"
	ActivityViewing       Activity = "viewing"
	ActivityEditing       Activity = "editing"
	ActivityCollaborating Activity = "collaborating"
	ActivityChatting      Activity = "chatting"
	ActivityPresenting    Activity = "presenting"
	ActivityAway          Activity = "away"
)

// ParseActivity normalizes a wire value, falling back to idle.
func ParseActivity(raw string) Activity {
	a := Activity(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case ActivityIdle, ActivityViewing, ActivityEditing, ActivityCollaborating,
		ActivityChatting, ActivityPresenting, ActivityAway:
		return a
	}
	return ActivityIdle
}

// Scope is the namespace a presence record is published under. The zero
// value is the global scope; a project scope has only ProjectID set; a
// canvas scope has CanvasID (and usually ProjectID) set.
type Scope struct {
	ProjectID string
	CanvasID  string
}

func GlobalScope() Scope { return Scope{} }

func ProjectScope(projectID string) Scope {
	return Scope{ProjectID: projectID}
}

func CanvasScope(projectID, canvasID string) Scope {
	return Scope{ProjectID: projectID, CanvasID: canvasID}
}

func (s Scope) IsGlobal() bool { return s.ProjectID == "" && s.CanvasID == "" }
func (s Scope) IsCanvas() bool { return s.CanvasID != "" }

// Key is the transport key this scope's records live under.
func (s Scope) Key() string {
	switch {
	case s.CanvasID != "" && s.ProjectID != "":
		return "project:" + s.ProjectID + ":canvas:" + s.CanvasID
	case s.CanvasID != "":
		return "canvas:" + s.CanvasID
	case s.ProjectID != "":
		return "project:" + s.ProjectID
	default:
		return "global"
	}
}

// Identity is the externally supplied identity of this client. Validation
// is the caller's job; presence only echoes it.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

// Cursor is a position on the canvas.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is one user's presence under one scope.
type Record struct {
	UserID           string            `json:"userId"`
	DisplayName      string            `json:"displayName"`
	AvatarRef        string            `json:"avatarRef,omitempty"`
	Online           bool              `json:"isOnline"`
	LastSeen         int64             `json:"lastSeen"` // unix millis
	Activity         Activity          `json:"currentActivity"`
	ProjectID        string            `json:"projectId,omitempty"`
	CanvasID         string            `json:"canvasId,omitempty"`
	Cursor           *Cursor           `json:"cursorPosition,omitempty"`
	SelectedShapeIDs []string          `json:"selectedShapeIds"`
	Typing           bool              `json:"isTyping"`
	TypingContext    string            `json:"typingContext,omitempty"`
	ConnectionID     string            `json:"connectionId"`
	ClientMetadata   map[string]string `json:"clientMetadata,omitempty"`
}
