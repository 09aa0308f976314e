package event

import "github.com/google/uuid"

// Context is an immutable causality token attached to every event and
// state change. It carries attribution (which user, which parent action)
// for audit trails without the core interpreting any of it.
type Context struct {
	// ID uniquely identifies this causal chain link.
	ID string `json:"id"`

	// UserID identifies the user that initiated the action, if known.
	UserID string `json:"user_id,omitempty"`

	// ParentID links to the context that caused this one, if any.
	ParentID string `json:"parent_id,omitempty"`
}

// NewContext creates a fresh Context with a generated ID.
func NewContext() Context {
	return Context{ID: uuid.NewString()}
}

// UserContext creates a fresh Context attributed to a user.
func UserContext(userID string) Context {
	return Context{ID: uuid.NewString(), UserID: userID}
}

// ChildContext creates a fresh Context caused by parent. The user
// attribution is inherited.
func ChildContext(parent Context) Context {
	return Context{ID: uuid.NewString(), UserID: parent.UserID, ParentID: parent.ID}
}
