package versions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Batch struct {
	Id      uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Regions datatypes.JSON `gorm:"type:jsonb;not null"`
	Derived bool           `gorm:"default:false"`

	Status         string `gorm:"size:20;not null"`
	StartTime      time.Time
	CompletionTime sql.NullTime

	SucceededCount int `gorm:"default:0"`
	FailedCount    int `gorm:"default:0"`

	Runs []RegionRun `gorm:"foreignKey:BatchId;constraint:OnDelete:CASCADE"`
}

type RegionRun struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	BatchId  uuid.UUID `gorm:"type:uuid;index"`
	Position int

	Region  string `gorm:"index;not null"`
	Derived bool   `gorm:"default:false"`

	State       string `gorm:"size:20;not null"`
	FailedStage sql.NullString
	ErrorKind   sql.NullString
	Error       sql.NullString

	TargetFolder sql.NullString
	Outputs      datatypes.JSON `gorm:"type:jsonb"`

	StartTime      time.Time
	CompletionTime sql.NullTime
}

func Migration0(db *gorm.DB) error {
	if err := db.AutoMigrate(&Batch{}, &RegionRun{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
