package ledger

import (
	"fmt"
	"io"
)

// CleanupKey removes the recorded runs of key. With failedOnly only
// unsuccessful runs are considered.
func (l *Ledger) CleanupKey(
	out io.Writer,
	key string,
	failedOnly bool,
	dryRun bool,
) (int, error) {
	tx := l.DB.Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("could not start transaction: %w", tx.Error)
	}

	query := tx.Where("target_key = ?", key)
	if failedOnly {
		query = query.Where("succeeded = ?", false)
	}

	var runs []HashRun
	result := query.Find(&runs)
	if result.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("could not find runs of %s: %w", key, result.Error)
	}

	fmt.Fprintf(out, "Found %d runs\n", len(runs))
	for _, run := range runs {
		fmt.Fprintf(
			out,
			"- %d, started: %s, versions added: %d, succeeded: %t\n",
			run.HashRunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.VersionsAdded,
			run.Succeeded,
		)
	}

	if dryRun || len(runs) == 0 {
		tx.Rollback()
		return len(runs), nil
	}

	fmt.Fprintf(out, "Deleting records for %s\n", key)
	result = tx.Delete(&runs)
	if result.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("could not delete records: %w", result.Error)
	}
	result = tx.Commit()
	if result.Error != nil {
		return 0, fmt.Errorf("could not delete records: %w", result.Error)
	}
	return len(runs), nil
}
