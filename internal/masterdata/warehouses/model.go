package warehouses

import "time"

// Warehouse is the read model used for reference validation and pickers.
// Master-data maintenance lives in a separate back-office service; this
// module only consumes the rows.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilters narrows warehouse listings.
type ListFilters struct {
	Search string
	Page   int
	Limit  int
}
