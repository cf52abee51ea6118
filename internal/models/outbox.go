package models

import "time"

// OutboxMessage is written in the same transaction as the event it carries
// and relayed to the broker afterwards.
type OutboxMessage struct {
	ID        uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID   string     `json:"event_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	Topic     string     `json:"topic" gorm:"type:varchar(64);not null"`
	Key       string     `json:"key" gorm:"type:varchar(64);not null"`
	Payload   string     `json:"payload" gorm:"type:text;not null"`
	Attempts  int        `json:"attempts" gorm:"not null;default:0"`
	LastError string     `json:"last_error,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" gorm:"index"`
}
