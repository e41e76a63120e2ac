package models

import "time"

type Property struct {
	PropertyID  string    `json:"property_id"`
	AgencyID    string    `json:"agency_id"`
	OwnerUserID string    `json:"owner_user_id,omitempty"`
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	UnitVacant      = "vacant"
	UnitOccupied    = "occupied"
	UnitMaintenance = "maintenance"
)

type Unit struct {
	UnitID      string    `json:"unit_id"`
	PropertyID  string    `json:"property_id"`
	AgencyID    string    `json:"agency_id"`
	Label       string    `json:"label"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	AreaM2      int       `json:"area_m2"`
	MonthlyRent int64     `json:"monthly_rent"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	ListingDraft     = "draft"
	ListingPublished = "published"
	ListingArchived  = "archived"

	ListingKindRent = "rent"
	ListingKindSale = "sale"
)

type Listing struct {
	ListingID   string     `json:"listing_id"`
	AgencyID    string     `json:"agency_id"`
	UnitID      string     `json:"unit_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       int64      `json:"price"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	City        string     `json:"city,omitempty"`
	Bedrooms    int        `json:"bedrooms,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ListingFilter struct {
	AgencyID    string
	City        string
	Kind        string
	MinPrice    int64
	MaxPrice    int64
	MinBedrooms int
	Query       string
}
