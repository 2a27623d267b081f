package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"PerpCore/internal/core"
	"PerpCore/internal/engine"
	"PerpCore/internal/ingestion"
	"PerpCore/internal/observability"
	"PerpCore/internal/query"

	"github.com/rs/zerolog"
)

// Server is the HTTP API. Reads are served from Postgres via the query
// service; action injection goes through the admin service into the
// same channel NATS feeds. The market list is startup-static, so it is
// read straight from the engine.
type Server struct {
	httpServer *http.Server
	loop       *core.Loop
	engine     *engine.Engine
	queries    *query.QueryService
	admin      *ingestion.AdminService
	health     *observability.HealthChecker
	log        zerolog.Logger
}

func New(
	addr string,
	loop *core.Loop,
	eng *engine.Engine,
	queries *query.QueryService,
	admin *ingestion.AdminService,
	health *observability.HealthChecker,
	log zerolog.Logger,
) *Server {
	s := &Server{
		loop:    loop,
		engine:  eng,
		queries: queries,
		admin:   admin,
		health:  health,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.LivenessHandler)
	mux.HandleFunc("GET /readyz", health.ReadinessHandler)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/markets", s.handleMarkets)
	mux.HandleFunc("GET /v1/markets/{token}/funding", s.handleFundingHistory)
	mux.HandleFunc("GET /v1/actions", s.handleListActions)
	mux.HandleFunc("GET /v1/actions/{id}", s.handleGetAction)
	mux.HandleFunc("GET /v1/plans/{id}/transfers", s.handleTransfers)
	mux.HandleFunc("GET /v1/volumes", s.handleVolumes)
	mux.HandleFunc("POST /v1/actions/{kind}", s.handleInject)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	hash := s.loop.StateHash()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sequence":   s.loop.Sequence(),
		"state_hash": hex.EncodeToString(hash[:]),
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"markets": s.engine.MarketTokens(),
	})
}

func (s *Server) handleFundingHistory(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	limit := queryLimit(r, 100)
	var beforeSeq *int64
	if v := r.URL.Query().Get("before_seq"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before_seq")
			return
		}
		beforeSeq = &seq
	}

	points, err := s.queries.GetFundingHistory(r.Context(), token, limit, beforeSeq)
	if err != nil {
		s.log.Error().Err(err).Msg("funding history query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"funding": points})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	market := r.URL.Query().Get("market")
	if (owner == "") == (market == "") {
		writeError(w, http.StatusBadRequest, "pass exactly one of owner or market")
		return
	}
	limit := queryLimit(r, 50)
	var before *time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = &ts
	}

	var actions []query.ActionRecord
	var err error
	if owner != "" {
		actions, err = s.queries.ListActionsByOwner(r.Context(), owner, limit, before)
	} else {
		actions, err = s.queries.ListActionsByMarket(r.Context(), market, limit, before)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("action list query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.queries.GetAction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("action query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.queries.GetTransfers(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error().Err(err).Msg("transfer query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": transfers})
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	volumes, err := s.queries.GetTokenVolumes(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("volume query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"volumes": volumes})
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body too large or unreadable")
		return
	}

	actionID, err := s.admin.Inject(r.Context(), kind, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"action_id": actionID,
		"status":    "queued",
	})
}

func queryLimit(r *http.Request, fallback int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
