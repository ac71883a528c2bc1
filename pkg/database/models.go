package database

// User is a registered account. The password hash never leaves the package.
type User struct {
	Username   string
	Name       string
	Email      string
	CreatedAt  int64 // Unix milliseconds
	LastActive int64 // Unix milliseconds
}

// Product is a catalog entry with its aggregated rating.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	Category    string
	Seller      string
	Buyer       *string // nil while unsold
	HasImage    bool
	AvgRating   float64
	RatingCount int
	CreatedAt   int64 // Unix milliseconds
}

// Sold reports whether the product has a buyer.
func (p *Product) Sold() bool {
	return p.Buyer != nil
}

// NewProduct holds the fields of a product being listed.
type NewProduct struct {
	Seller      string
	Name        string
	Description string
	Category    string
	Price       float64
	Image       []byte
}

// ProductFilter narrows ListProducts. The zero value matches every unsold
// product.
type ProductFilter struct {
	Query    string // Substring of name, description or category
	Category string // Exact category, case-insensitive
}
