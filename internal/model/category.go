package model

// Category is one of the conventional labels offered by the listing form.
// The set is a suggestion, not a constraint: any label up to
// MaxCategoryLen characters is accepted on create.
type Category struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var categories = []Category{
	{Value: "action", Label: "Action"},
	{Value: "rpg", Label: "RPG"},
	{Value: "strategy", Label: "Strategy"},
	{Value: "simulation", Label: "Simulation"},
	{Value: "indie", Label: "Indie"},
	{Value: "horror", Label: "Horror"},
	{Value: "arcade", Label: "Arcade"},
}

// Categories returns a copy so callers can't mutate the shared list.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}
