package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PostStatusOpen    = "open"
	PostStatusPlanned = "planned"
	PostStatusDone    = "done"
)

// Post is the primary feedback record linked records attach to. The wider
// post CRUD surface lives outside this service; dispatch and cascade only
// need the row itself.
type Post struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID uint           `gorm:"index" json:"workspace_id"`
	AuthorID    uint           `gorm:"index" json:"author_id"`
	Title       string         `gorm:"type:varchar(255)" json:"title"`
	Body        string         `gorm:"type:text" json:"body"`
	Status      string         `gorm:"type:varchar(30);default:'open'" json:"status"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
