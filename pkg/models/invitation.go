package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation is a filled-in template published by an end user
type Invitation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TemplateID uuid.UUID `json:"templateId" db:"template_id"`
	Data       JSONMap   `json:"data" db:"data"`
	ShareCode  string    `json:"shareCode" db:"share_code"`
	ViewCount  int64     `json:"viewCount" db:"view_count"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}
