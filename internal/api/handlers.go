package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cardlens/analyzer/internal/domain"
	"github.com/cardlens/analyzer/internal/ingest"
	"github.com/cardlens/analyzer/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	stmtRepo *repository.StatementRepo
	txnRepo  *repository.TransactionRepo
	orch     *ingest.Orchestrator
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// --- IngestStatements ---

// IngestStatements accepts a multipart batch (issuer field plus one or
// more files) and runs the full reconciliation sequence. The response
// carries the resulting state: COMMITTED, AWAITING_CONFIRMATION with a
// check id and warnings, or REJECTED_DUPLICATE.
func (h *Handlers) IngestStatements(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	issuer := r.FormValue("issuer")
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	var files []ingest.File
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "open "+hdr.Filename+": "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read "+hdr.Filename+": "+err.Error())
			return
		}
		files = append(files, ingest.File{Name: hdr.Filename, Data: data})
	}

	result, err := h.orch.Ingest(r.Context(), issuer, files)
	if err != nil {
		if errors.Is(err, domain.ErrNoTransactions) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ConfirmCheck / CancelCheck ---

func (h *Handlers) ConfirmCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrCheckNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) CancelCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Cancel(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrCheckNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(domain.StateCancelled)})
}

// --- Statements ---

func (h *Handlers) ListStatements(w http.ResponseWriter, r *http.Request) {
	stmts, err := h.stmtRepo.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statements": stmts,
		"total":      len(stmts),
	})
}

func (h *Handlers) DeleteStatement(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid statement id")
		return
	}
	if _, err := h.stmtRepo.GetByID(id); err != nil {
		writeError(w, http.StatusNotFound, "statement not found")
		return
	}
	if err := h.stmtRepo.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handlers) ListStatementTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid statement id")
		return
	}
	txns, err := h.txnRepo.ListByStatement(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        len(txns),
	})
}

// --- Transactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TransactionFilter{
		Period:   q.Get("period"),
		Category: q.Get("category"),
		Issuer:   q.Get("issuer"),
	}

	txns, err := h.txnRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        len(txns),
	})
}

// --- Lookup helpers ---

func (h *Handlers) ListIssuers(w http.ResponseWriter, r *http.Request) {
	issuers, err := h.stmtRepo.DistinctIssuers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issuers": issuers})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	nStmt, err := h.stmtRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	nTxn, err := h.txnRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"statements":   nStmt,
		"transactions": nTxn,
	})
}
