package fares

import "time"

// Route is a named trip with a fixed fare in whole Kenyan shillings.
type Route struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Description string    `json:"description"`
	Fare        int64     `json:"fare"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input is the editable part of a route.
type Input struct {
	Description string
	Fare        int64
}
