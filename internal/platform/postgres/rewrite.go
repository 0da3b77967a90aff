package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner starts transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BackupTable is the name of a table's backup copy for a run.
func BackupTable(table, runID string) string {
	return fmt.Sprintf("%s_backup_%s", table, runID)
}

// Backup copies every provider table into its backup table. A backup that
// already exists is kept, so retried attempts never overwrite the pristine
// copy with partially rewritten rows.
func Backup(ctx context.Context, db Execer, runID string) ([]string, error) {
	var created []string
	for _, t := range ProviderTables {
		backup := BackupTable(t.Table, runID)
		if _, err := db.Exec(ctx, backupStatement(t.Table, backup)); err != nil {
			return created, fmt.Errorf("back up %s: %w", t.Table, err)
		}
		created = append(created, backup)
	}
	return created, nil
}

func backupStatement(table, backup string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s AS TABLE %s`,
		pgx.Identifier{backup}.Sanitize(), pgx.Identifier{table}.Sanitize())
}

// RewriteResult counts rewritten rows per table.
type RewriteResult map[string]int64

// Total returns the number of rewritten rows over all tables.
func (r RewriteResult) Total() int64 {
	var n int64
	for _, v := range r {
		n += v
	}
	return n
}

// RewriteProviderNames replaces bare provider names with plugin identifiers
// in one transaction. Rows that already hold an identifier are left alone,
// which makes the rewrite safe to repeat.
func RewriteProviderNames(ctx context.Context, db TxBeginner, namespace string) (RewriteResult, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rewrite: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result := RewriteResult{}
	for _, t := range ProviderTables {
		tag, err := tx.Exec(ctx, rewriteStatement(t), namespace)
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", t.Table, err)
		}
		result[t.Table] = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rewrite: %w", err)
	}
	return result, nil
}

func rewriteStatement(t ProviderTable) string {
	col := pgx.Identifier{t.Column}.Sanitize()
	return fmt.Sprintf(
		`UPDATE %s SET %s = $1 || '/' || lower(trim(%s)) WHERE %s NOT LIKE '%%/%%' AND trim(%s) <> ''`,
		pgx.Identifier{t.Table}.Sanitize(), col, col, col, col)
}
