package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/gridclash/gridclash-backend/internal/apperror"
	"github.com/gridclash/gridclash-backend/internal/repository"
)

type handler struct {
	logger  *slog.Logger
	archive repository.ArchiveRepository
}

func newHandler(logger *slog.Logger, archive repository.ArchiveRepository) *handler {
	return &handler{
		logger:  logger.With("component", "rest"),
		archive: archive,
	}
}

func (that *handler) ping(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// matchByID serves the archived record of a completed match.
func (that *handler) matchByID(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	log := that.logger.With("method", "matchByID")

	id := params.ByName("id")

	record, err := that.archive.GetByID(r.Context(), id)
	if errors.Is(err, apperror.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "match record not found"})
		return
	}

	if err != nil {
		log.Error("failed to get match record", "matchID", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
