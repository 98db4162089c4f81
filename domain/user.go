package domain

import "strings"

// User is the profile document stored for each account. ID is issued by the
// identity provider at sign-up and never changes.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

// ValidEmail is the syntactic check applied before any email update is
// attempted against either backend.
func ValidEmail(email string) bool {
	return strings.Contains(email, "@")
}
