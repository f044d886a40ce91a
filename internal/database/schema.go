package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchRunning   string = "RUNNING"
	BatchCompleted string = "COMPLETED"
)

type Batch struct {
	Id      uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Regions datatypes.JSON `gorm:"type:jsonb;not null"` // ["Belgium", …]
	Derived bool           `gorm:"default:false"`

	Status         string `gorm:"size:20;not null"`
	StartTime      time.Time
	CompletionTime sql.NullTime

	SucceededCount int `gorm:"default:0"`
	FailedCount    int `gorm:"default:0"`

	Runs []RegionRun `gorm:"foreignKey:BatchId;constraint:OnDelete:CASCADE"`
}

// RegionRun is the history of one region run. State holds the pipeline state
// the run is in, or its terminal state.
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
	Outputs      datatypes.JSON `gorm:"type:jsonb"` // ["summary/rt.csv", …]

	StartTime      time.Time
	CompletionTime sql.NullTime
}
