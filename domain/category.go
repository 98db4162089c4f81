package domain

// Category tags tasks and carries the display color (packed ARGB) and the
// symbolic icon name the client resolves to an asset.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    int64  `json:"color"`
	IconName string `json:"iconName"`
}

// DefaultCategories are seeded into the shared collection when it is empty.
var DefaultCategories = []Category{
	{Name: "Grocery", Color: 0xFFCCFF80, IconName: "grocery"},
	{Name: "Work", Color: 0xFFFF9680, IconName: "work"},
	{Name: "Sport", Color: 0xFF80FFFF, IconName: "sport"},
	{Name: "Design", Color: 0xFF80FFD9, IconName: "design"},
	{Name: "University", Color: 0xFF809CFF, IconName: "university"},
	{Name: "Social", Color: 0xFFFF80EB, IconName: "social"},
	{Name: "Music", Color: 0xFFFC80FF, IconName: "music"},
	{Name: "Health", Color: 0xFF80FFA3, IconName: "health"},
	{Name: "Movie", Color: 0xFF80D1FF, IconName: "movie"},
	{Name: "Home", Color: 0xFFFFCC80, IconName: "home"},
}
