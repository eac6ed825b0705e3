package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cardlens/analyzer/internal/domain"
)

type StatementRepo struct {
	db *sql.DB
}

func NewStatementRepo(db *sql.DB) *StatementRepo {
	return &StatementRepo{db: db}
}

// CreateWithTransactions inserts a statement and all its transactions in a
// single database transaction: either every row is written or none is.
// Returns the new statement id.
func (r *StatementRepo) CreateWithTransactions(stmt *domain.Statement, txns []domain.Transaction) (int64, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.Exec(
		`INSERT INTO statements (filename, issuer, period, imported_at, tx_count, cutoff_day, file_hash)
		VALUES (?,?,?,?,?,?,?)`,
		stmt.Filename, stmt.Issuer, stmt.Period, stmt.ImportedAt.Format(time.RFC3339),
		len(txns), nullableInt(stmt.CutoffDay), nullableString(stmt.FileHash),
	)
	if err != nil {
		return 0, fmt.Errorf("insert statement: %w", err)
	}
	stmtID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("statement id: %w", err)
	}

	ins, err := sqlTx.Prepare(
		`INSERT INTO transactions
		(statement_id, trans_date, posting_date, description, amount, category, subcategory, issuer)
		VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer ins.Close()

	for i := range txns {
		t := &txns[i]
		_, err := ins.Exec(
			stmtID, t.TransDate, nullableString(t.PostingDate), t.Description,
			t.Amount, t.Category, nullableString(t.Subcategory), t.Issuer,
		)
		if err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stmtID, nil
}

func (r *StatementRepo) GetByID(id int64) (*domain.Statement, error) {
	row := r.db.QueryRow(
		`SELECT id, filename, issuer, period, imported_at, tx_count, cutoff_day, file_hash
		FROM statements WHERE id = ?`, id)
	return scanStatement(row.Scan)
}

func (r *StatementRepo) List() ([]domain.Statement, error) {
	rows, err := r.db.Query(
		`SELECT id, filename, issuer, period, imported_at, tx_count, cutoff_day, file_hash
		FROM statements ORDER BY imported_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var stmts []domain.Statement
	for rows.Next() {
		s, err := scanStatement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stmts = append(stmts, *s)
	}
	return stmts, rows.Err()
}

// ListFingerprinted returns every statement carrying at least one content
// fingerprint, for duplicate-file lookups.
func (r *StatementRepo) ListFingerprinted() ([]domain.Statement, error) {
	rows, err := r.db.Query(
		`SELECT id, filename, issuer, period, imported_at, tx_count, cutoff_day, file_hash
		FROM statements WHERE file_hash IS NOT NULL AND file_hash != ''`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var stmts []domain.Statement
	for rows.Next() {
		s, err := scanStatement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		stmts = append(stmts, *s)
	}
	return stmts, rows.Err()
}

// PeriodTotal pairs a statement with the sum of its positive-amount
// transactions. Credits and payment adjustments are excluded from the
// total.
type PeriodTotal struct {
	Statement     domain.Statement
	PositiveTotal float64
}

// PeriodTotals returns every statement whose period exactly equals the
// given period, with its positive-amount total.
func (r *StatementRepo) PeriodTotals(period string) ([]PeriodTotal, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.filename, s.issuer, s.period, s.imported_at, s.tx_count, s.cutoff_day, s.file_hash,
		       COALESCE(SUM(CASE WHEN t.amount > 0 THEN t.amount ELSE 0 END), 0)
		FROM statements s
		LEFT JOIN transactions t ON t.statement_id = s.id
		WHERE s.period = ?
		GROUP BY s.id
	`, period)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var totals []PeriodTotal
	for rows.Next() {
		var pt PeriodTotal
		var importedAt string
		var cutoff sql.NullInt64
		var hash sql.NullString
		err := rows.Scan(
			&pt.Statement.ID, &pt.Statement.Filename, &pt.Statement.Issuer,
			&pt.Statement.Period, &importedAt, &pt.Statement.TxCount,
			&cutoff, &hash, &pt.PositiveTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		pt.Statement.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
		if cutoff.Valid {
			pt.Statement.CutoffDay = int(cutoff.Int64)
		}
		if hash.Valid {
			pt.Statement.FileHash = hash.String
		}
		totals = append(totals, pt)
	}
	return totals, rows.Err()
}

// Delete removes a statement and all its transactions. The two deletes run
// in one database transaction.
func (r *StatementRepo) Delete(id int64) error {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.Exec("DELETE FROM transactions WHERE statement_id = ?", id); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	if _, err := sqlTx.Exec("DELETE FROM statements WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}
	return sqlTx.Commit()
}

// DistinctIssuers lists previously used issuer labels, most recently
// imported first.
func (r *StatementRepo) DistinctIssuers() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT issuer, MAX(imported_at) AS last_import
		FROM statements WHERE issuer IS NOT NULL AND issuer != ''
		GROUP BY issuer ORDER BY last_import DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var issuers []string
	for rows.Next() {
		var issuer, lastImport string
		if err := rows.Scan(&issuer, &lastImport); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		issuers = append(issuers, issuer)
	}
	return issuers, rows.Err()
}

func (r *StatementRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM statements").Scan(&count)
	return count, err
}

// --- helpers ---

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanStatement(scan func(dest ...any) error) (*domain.Statement, error) {
	var s domain.Statement
	var importedAt string
	var cutoff sql.NullInt64
	var hash sql.NullString

	err := scan(&s.ID, &s.Filename, &s.Issuer, &s.Period, &importedAt,
		&s.TxCount, &cutoff, &hash)
	if err != nil {
		return nil, err
	}

	s.ImportedAt, _ = time.Parse(time.RFC3339, importedAt)
	if cutoff.Valid {
		s.CutoffDay = int(cutoff.Int64)
	}
	if hash.Valid {
		s.FileHash = hash.String
	}
	return &s, nil
}
