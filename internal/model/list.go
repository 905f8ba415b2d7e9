package model

import "time"

// List is a named mailing list. Membership is an array on the list, not
// a join table, so cardinality is enforced in application logic only.
// MemberCount is a cached mirror of len(MemberIDs) kept in step by the
// repository's membership mutations.
type List struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberIDs   []string  `json:"member_ids"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
