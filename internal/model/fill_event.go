package model

import "time"

// FillEvent is the journal record of one manual refill session.
type FillEvent struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	DeviceID      string    `gorm:"size:64;index" json:"device_id"`
	Outcome       string    `gorm:"size:32;not null" json:"outcome"`
	AddedFood     float64   `gorm:"not null" json:"added_food"`
	AddedWater    float64   `gorm:"not null" json:"added_water"`
	FoodReported  bool      `gorm:"not null" json:"food_reported"`
	WaterReported bool      `gorm:"not null" json:"water_reported"`
	Queued        int       `gorm:"not null" json:"queued"` // deltas handed to the outbox
	StartedAt     time.Time `gorm:"not null" json:"started_at"`
	EndedAt       time.Time `gorm:"not null;index" json:"ended_at"`
}
