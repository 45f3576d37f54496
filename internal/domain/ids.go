package domain

import "github.com/google/uuid"

// ID is the opaque 128-bit identifier used for every entity in the system:
// workflows, executions, states, agents, iterations, patterns, stimuli and
// human input requests are all addressed the same way.
type ID = uuid.UUID

// NewID generates a fresh random identifier.
func NewID() ID {
	return uuid.New()
}

// ParseID parses a string into an ID, returning ErrInvalidInput on failure.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, NewDomainError(ErrCodeInvalidInput, "invalid identifier: "+s, err)
	}
	return id, nil
}
