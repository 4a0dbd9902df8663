package model

type CategoryType string

const (
	CategoryTypeFree CategoryType = "free"
	CategoryTypePaid CategoryType = "paid"
)

// Category is the purchasable product record (quiz category).
type Category struct {
	ID          string
	Name        string
	Description string
	Type        CategoryType
	PriceAmount int64 // currency minor units
}

// IsFree reports whether the category requires no payment leg: either it is
// explicitly marked free or its price is zero.
func (c *Category) IsFree() bool {
	return c.Type == CategoryTypeFree || c.PriceAmount == 0
}
