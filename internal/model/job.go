package model

import "gorm.io/gorm"

type JobStatus string

const (
	JobStatusActive  JobStatus = "ACTIVE"
	JobStatusPaused  JobStatus = "PAUSED"
	JobStatusStopped JobStatus = "STOPPED"
)

// Job is a saved mirror of SrcPath into DstPath that the watch daemon keeps current.
type Job struct {
	gorm.Model
	SrcPath string    `gorm:"not null" json:"src"`
	DstPath string    `gorm:"not null" json:"dst"`
	Preset  string    `gorm:"not null;default:'default'" json:"preset"`
	Status  JobStatus `gorm:"not null;default:'ACTIVE'" json:"status"`
}
