package types

import "github.com/google/uuid"

// Actor identifies who is performing a mutation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// CanAccessUser reports whether the actor may read or mutate data owned by userID.
func (a Actor) CanAccessUser(userID uuid.UUID) bool {
	return a.IsAdmin || a.UserID == userID
}
