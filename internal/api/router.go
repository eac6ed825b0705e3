package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cardlens/analyzer/internal/ingest"
	"github.com/cardlens/analyzer/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	stmtRepo *repository.StatementRepo,
	txnRepo *repository.TransactionRepo,
	orch *ingest.Orchestrator,
) http.Handler {
	h := &Handlers{
		stmtRepo: stmtRepo,
		txnRepo:  txnRepo,
		orch:     orch,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion and duplicate confirmation.
		r.Post("/statements/ingest", h.IngestStatements)
		r.Post("/checks/{id}/confirm", h.ConfirmCheck)
		r.Post("/checks/{id}/cancel", h.CancelCheck)

		// Statements.
		r.Get("/statements", h.ListStatements)
		r.Delete("/statements/{id}", h.DeleteStatement)
		r.Get("/statements/{id}/transactions", h.ListStatementTransactions)

		// Transactions.
		r.Get("/transactions", h.ListTransactions)

		// Lookup helpers.
		r.Get("/issuers", h.ListIssuers)
		r.Get("/stats", h.GetStats)
	})

	return r
}
