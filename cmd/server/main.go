package main

import (
	"context"
	"net/http"
	"os"

	"github.com/cardlens/analyzer/internal/api"
	"github.com/cardlens/analyzer/internal/extract"
	"github.com/cardlens/analyzer/internal/ingest"
	"github.com/cardlens/analyzer/internal/logger"
	"github.com/cardlens/analyzer/internal/repository"
)

func main() {
	log := logger.New()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "analyzer.db"
	}

	log.Info().Str("path", dbPath).Msg("initializing database")
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init db")
	}
	defer db.Close()

	stmtRepo := repository.NewStatementRepo(db)
	txnRepo := repository.NewTransactionRepo(db)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal().Msg("GEMINI_API_KEY is required")
	}
	gem, err := extract.NewGemini(context.Background(), apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create extractor")
	}

	orch := ingest.NewOrchestrator(
		stmtRepo, txnRepo,
		extract.WholeFile{}, gem, gem,
		ingest.ThresholdsFromEnv(), log,
	)

	router := api.NewRouter(stmtRepo, txnRepo, orch)

	log.Info().Str("port", port).Msg("credit card statement analyzer listening")
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
