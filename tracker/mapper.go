package tracker

import (
	"dayplan/docstore"
	"dayplan/domain"
)

// taskFromDocument maps a wire record to a Task. A record missing any
// required field is dropped individually; the rest of the batch is unaffected.
func taskFromDocument(doc docstore.Document) (domain.Task, bool) {
	title, ok1 := doc.Fields.String("title")
	date, ok2 := doc.Fields.Int64("date")
	category, ok3 := doc.Fields.String("category")
	userID, ok4 := doc.Fields.String("userId")
	completed, ok5 := doc.Fields.Bool("isCompleted")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return domain.Task{}, false
	}
	return domain.Task{
		ID:          doc.ID,
		Title:       title,
		Date:        date,
		Category:    category,
		UserID:      userID,
		IsCompleted: completed,
	}, true
}

func taskFields(title string, date int64, category, userID string) docstore.Fields {
	return docstore.Fields{
		"title":       title,
		"date":        date,
		"category":    category,
		"userId":      userID,
		"isCompleted": false,
	}
}

func patchFields(p domain.TaskPatch) docstore.Fields {
	f := docstore.Fields{}
	if p.Title != nil {
		f["title"] = *p.Title
	}
	if p.Date != nil {
		f["date"] = *p.Date
	}
	if p.Category != nil {
		f["category"] = *p.Category
	}
	if p.IsCompleted != nil {
		f["isCompleted"] = *p.IsCompleted
	}
	return f
}
