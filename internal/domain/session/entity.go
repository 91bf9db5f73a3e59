package session

import (
	"time"

	"github.com/google/uuid"
)

// VisitorSession is the read model of visitor_sessions, owned by the
// identity layer. This service never writes to it.
type VisitorSession struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey"`
	CollaboratorID uuid.NullUUID `gorm:"type:uuid"`
	CreatedAt      time.Time
}

func (VisitorSession) TableName() string {
	return "visitor_sessions"
}
