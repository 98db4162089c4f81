package profile

import (
	"dayplan/docstore"
	"dayplan/domain"
)

func userFields(u domain.User) docstore.Fields {
	f := docstore.Fields{
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
	}
	if u.PhotoURL != "" {
		f["photoUrl"] = u.PhotoURL
	}
	return f
}

// userFromDocument maps a wire record to a User. A record missing any
// required field is reported as unusable rather than half-populated.
func userFromDocument(doc docstore.Document) (domain.User, bool) {
	first, ok1 := doc.Fields.String("firstName")
	last, ok2 := doc.Fields.String("lastName")
	email, ok3 := doc.Fields.String("email")
	if !ok1 || !ok2 || !ok3 {
		return domain.User{}, false
	}
	photo, _ := doc.Fields.String("photoUrl")
	return domain.User{
		ID:        doc.ID,
		FirstName: first,
		LastName:  last,
		Email:     email,
		PhotoURL:  photo,
	}, true
}
