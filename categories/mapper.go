package categories

import (
	"dayplan/docstore"
	"dayplan/domain"
)

// categoryFromDocument rejects documents missing name or color. Icon name is
// optional, older records never carried one.
func categoryFromDocument(doc docstore.Document) (domain.Category, bool) {
	name, ok := doc.Fields.String("name")
	if !ok {
		return domain.Category{}, false
	}
	color, ok := doc.Fields.Int64("color")
	if !ok {
		return domain.Category{}, false
	}
	icon, _ := doc.Fields.String("iconName")
	return domain.Category{
		ID:       doc.ID,
		Name:     name,
		Color:    color,
		IconName: icon,
	}, true
}

func categoryFields(c domain.Category) docstore.Fields {
	return docstore.Fields{
		"name":     c.Name,
		"color":    c.Color,
		"iconName": c.IconName,
	}
}
