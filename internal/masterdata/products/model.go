package products

import "time"

// Product is the read model consumed by movement validation and pickers.
type Product struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search string
	Page   int
	Limit  int
}
