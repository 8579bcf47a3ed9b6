package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
)

// Connection pragmas applied when the DSN does not set them. Concurrent
// writers wait on the lock instead of failing with SQLITE_BUSY, so a
// duplicate insert reaches the conflict path and reads back the winner.
const (
	pragmaBusyTimeout = "_pragma=busy_timeout(5000)"
	pragmaJournalMode = "_pragma=journal_mode(WAL)"
)

// WithDefaultPragmas appends the busy timeout and WAL journal pragmas to
// dsn unless it already configures them.
func WithDefaultPragmas(dsn string) string {
	var add []string
	if !strings.Contains(dsn, "busy_timeout") {
		add = append(add, pragmaBusyTimeout)
	}
	if !strings.Contains(dsn, "journal_mode") {
		add = append(add, pragmaJournalMode)
	}
	if len(add) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

// Open opens a SQLite database at dsn with the default pragmas and wraps
// it in a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, WithDefaultPragmas(dsn)); err != nil {
		return nil, fmt.Errorf("tollgate/sqlite: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		return nil, fmt.Errorf("tollgate/sqlite: open: %w", err)
	}
	return New(db), nil
}
