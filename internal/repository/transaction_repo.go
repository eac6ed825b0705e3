package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/cardlens/analyzer/internal/domain"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// ExistsExact reports whether any stored transaction has the same date and
// description with an amount within slack units of amount.
func (r *TransactionRepo) ExistsExact(transDate, description string, amount, slack float64) (bool, error) {
	var id int64
	err := r.db.QueryRow(`
		SELECT id FROM transactions
		WHERE trans_date = ? AND description = ? AND ABS(amount - ?) < ?
		LIMIT 1
	`, transDate, description, amount, slack).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return true, nil
}

// ExistsSoft reports whether any stored transaction has the same date with
// an amount within slack units, ignoring the description. This tolerates
// OCR noise in merchant text.
func (r *TransactionRepo) ExistsSoft(transDate string, amount, slack float64) (bool, error) {
	var id int64
	err := r.db.QueryRow(`
		SELECT id FROM transactions
		WHERE trans_date = ? AND ABS(amount - ?) < ?
		LIMIT 1
	`, transDate, amount, slack).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return true, nil
}

type TransactionFilter struct {
	Period   string // statement billing period, YYYY-MM
	Category string
	Issuer   string
}

func (r *TransactionRepo) List(f TransactionFilter) ([]domain.Transaction, error) {
	var clauses []string
	var args []any

	if f.Period != "" {
		clauses = append(clauses, "s.period = ?")
		args = append(args, f.Period)
	}
	if f.Category != "" {
		clauses = append(clauses, "t.category = ?")
		args = append(args, f.Category)
	}
	if f.Issuer != "" {
		clauses = append(clauses, "t.issuer = ?")
		args = append(args, f.Issuer)
	}

	query := `
		SELECT t.id, t.statement_id, t.trans_date, t.posting_date, t.description,
		       t.amount, t.category, t.subcategory, t.issuer
		FROM transactions t
		JOIN statements s ON t.statement_id = s.id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY t.trans_date DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) ListByStatement(statementID int64) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, statement_id, trans_date, posting_date, description,
		       amount, category, subcategory, issuer
		FROM transactions WHERE statement_id = ? ORDER BY trans_date
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

// SampleLabeled picks up to perCategory labeled rows per category, skipping
// the fallback category, as reference examples for the labeling
// collaborator.
func (r *TransactionRepo) SampleLabeled(perCategory int) ([]domain.LabeledExample, error) {
	rows, err := r.db.Query(`
		SELECT description, category, subcategory FROM (
			SELECT description, category, subcategory,
			       ROW_NUMBER() OVER (PARTITION BY category ORDER BY RANDOM()) AS rn
			FROM transactions
			WHERE category IS NOT NULL AND category != '' AND category != ?
		)
		WHERE rn <= ?
		ORDER BY category
	`, domain.CategoryOther, perCategory)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var examples []domain.LabeledExample
	for rows.Next() {
		var ex domain.LabeledExample
		var sub sql.NullString
		if err := rows.Scan(&ex.Description, &ex.Category, &sub); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if sub.Valid {
			ex.Subcategory = sub.String
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}

// --- helpers ---

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var posting, sub sql.NullString
		err := rows.Scan(&t.ID, &t.StatementID, &t.TransDate, &posting,
			&t.Description, &t.Amount, &t.Category, &sub, &t.Issuer)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if posting.Valid {
			t.PostingDate = posting.String
		}
		if sub.Valid {
			t.Subcategory = sub.String
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
