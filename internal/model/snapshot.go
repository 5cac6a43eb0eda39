package model

import "time"

type JobSnapshot struct {
	JobID     uint       `json:"job_id"`
	Src       string     `json:"src"`
	Dst       string     `json:"dst"`
	Preset    string     `json:"preset"`
	Status    JobStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	Runs      int        `json:"runs"`
	Mutations int        `json:"mutations"`
	Failed    int        `json:"failed"`
	LastRun   *time.Time `json:"last_run"`
	LastError string     `json:"last_error,omitempty"`
}
