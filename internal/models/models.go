package models

import (
	"time"
)

// Channel is a publishing channel with a weekly automation schedule.
type Channel struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	Position int    `gorm:"not null;default:0;index" json:"position"`
	// Timezone is an IANA name; empty means the service default.
	Timezone  string          `gorm:"type:varchar(64)" json:"timezone,omitempty"`
	Active    bool            `gorm:"not null;default:true" json:"active"`
	Slots     []ScheduledSlot `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"slots"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Channel) TableName() string {
	return "channels"
}

// ScheduledSlot is one weekly generation slot of a channel.
type ScheduledSlot struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID       string    `gorm:"type:uuid;index;not null" json:"channel_id"`
	DayOfWeek       int       `gorm:"not null" json:"day_of_week"` // 0 = Sunday
	StartTime       string    `gorm:"type:varchar(8);not null" json:"start_time"`
	DurationMinutes int       `gorm:"not null;default:0" json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ScheduledSlot) TableName() string {
	return "scheduled_slots"
}
