package model

import "time"

// Dispense task end states.
const (
	DispenseCompleted = "completed"
	DispenseStalled   = "stalled"
)

// DispenseEvent is the journal record of one finished dispense task.
type DispenseEvent struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	DeviceID     string    `gorm:"size:64;index" json:"device_id"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	TargetAmount float64   `gorm:"not null" json:"target_amount"`
	Dispensed    float64   `gorm:"not null" json:"dispensed"`
	StartedAt    time.Time `gorm:"not null" json:"started_at"`
	FinishedAt   time.Time `gorm:"not null;index" json:"finished_at"`
}
