package models

import "time"

// TimeSession is the payload of a time_session operation.
type TimeSession struct {
	EquipmentID     int64      `json:"equipment_id"`
	DurationMinutes int        `json:"duration_minutes"`
	UserID          string     `json:"user_id,omitempty"`
	TaskID          *int64     `json:"task_id,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// FuelLog is the payload of a fuel_log operation.
type FuelLog struct {
	EquipmentID   int64      `json:"equipment_id"`
	Liters        float64    `json:"liters"`
	PricePerLiter float64    `json:"price_per_liter,omitempty"`
	OdometerHours float64    `json:"odometer_hours,omitempty"`
	FilledAt      *time.Time `json:"filled_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}
