// Package ledger records hash collection runs in a SQLite database.
package ledger

import "time"

type HashRun struct {
	HashRunID     uint   `gorm:"primaryKey;not null;index:ix_hash_run_hash_run_id"`
	TargetKey     string `gorm:"type:varchar(255);not null;index:ix_hash_run_target_key"`
	RepoType      string `gorm:"type:varchar(40)"`
	Location      string
	StartedAt     time.Time `gorm:"not null"`
	FinishedAt    *time.Time
	VersionsAdded int
	Succeeded     bool `gorm:"type:boolean;check:succeeded IN (0, 1)"`
	Error         string
}

// KeySummary aggregates the runs of one key.
type KeySummary struct {
	TargetKey     string
	Runs          int
	Failures      int
	VersionsAdded int
	LastStarted   time.Time
}
