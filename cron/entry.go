package cron

import (
	"context"
	"time"
)

// Task is the work a cron entry runs.
type Task func(ctx context.Context) error

// Entry is a registered maintenance task.
type Entry struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int64      `json:"runs"`

	task Task
}

// Well-known maintenance tasks.
const (
	TaskExpireOverdue = "expire-overdue"
	TaskRetrain       = "retrain-estimator"
)
