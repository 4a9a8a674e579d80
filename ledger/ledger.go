package ledger

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type Ledger struct {
	DB  *gorm.DB
	now func() time.Time
}

// Open connects to the SQLite database at path. Use "file::memory:" for a
// throwaway ledger.
func Open(path string) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not access connection pool: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	return &Ledger{DB: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	sqlDB, err := l.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *Ledger) Migrate() error {
	return l.DB.AutoMigrate(&HashRun{})
}

func (l *Ledger) StartRun(key string, repo vulndb.Repository) (uint, error) {
	run := HashRun{
		TargetKey: key,
		RepoType:  repo.Type,
		Location:  repo.Location,
		StartedAt: l.now().UTC(),
	}
	result := l.DB.Create(&run)
	if result.Error != nil {
		return 0, fmt.Errorf("could not record run of %s: %w", key, result.Error)
	}
	return run.HashRunID, nil
}

func (l *Ledger) FinishRun(id uint, versionsAdded int, runErr error) error {
	finished := l.now().UTC()
	updates := map[string]any{
		"finished_at":    &finished,
		"versions_added": versionsAdded,
		"succeeded":      runErr == nil,
		"error":          "",
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}

	result := l.DB.Model(&HashRun{}).Where("hash_run_id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("could not finish run %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %d %w", id, vulndb.ErrNotFound)
	}
	return nil
}

// Runs returns the runs of key, newest first. An empty key returns the runs
// of every key.
func (l *Ledger) Runs(key string, limit int) ([]HashRun, error) {
	var runs []HashRun
	query := l.DB.Order("started_at desc, hash_run_id desc")
	if key != "" {
		query = query.Where(&HashRun{TargetKey: key})
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("could not list runs: %w", result.Error)
	}
	return runs, nil
}

func (l *Ledger) Summaries() ([]KeySummary, error) {
	var runs []HashRun
	result := l.DB.Order("target_key, started_at").Find(&runs)
	if result.Error != nil {
		return nil, fmt.Errorf("could not list runs: %w", result.Error)
	}

	var summaries []KeySummary
	for _, run := range runs {
		if len(summaries) == 0 || summaries[len(summaries)-1].TargetKey != run.TargetKey {
			summaries = append(summaries, KeySummary{TargetKey: run.TargetKey})
		}
		summary := &summaries[len(summaries)-1]
		summary.Runs++
		summary.VersionsAdded += run.VersionsAdded
		if !run.Succeeded {
			summary.Failures++
		}
		if run.StartedAt.After(summary.LastStarted) {
			summary.LastStarted = run.StartedAt
		}
	}
	return summaries, nil
}
