package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/round"
	"github.com/MJE43/studio-analyzer/internal/roundstore"
)

const maxBodyBytes = 1 << 16

type createSessionRequest struct {
	Name string `json:"name"`
}

// appendRoundRequest is the body of POST .../rounds. Either outcome or both
// cards must be present.
type appendRoundRequest struct {
	Outcome   string    `json:"outcome"`
	SideACard string    `json:"side_a_card"`
	SideBCard string    `json:"side_b_card"`
	Timestamp time.Time `json:"timestamp"`
}

type appendRoundResponse struct {
	Round    round.Round     `json:"round"`
	Analysis analysis.Result `json:"analysis"`
}

type sessionsResponse struct {
	Sessions []roundstore.Session `json:"sessions"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

type roundsResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Rounds    []round.Round `json:"rounds"`
	Limit     int           `json:"limit"`
}

type analysisResponse struct {
	SessionID  uuid.UUID         `json:"session_id"`
	Forecaster string            `json:"forecaster"`
	Policy     string            `json:"policy"`
	Analysis   analysis.Result   `json:"analysis"`
	Ranked     []analysis.Ranked `json:"ranked"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
			return
		}
	}
	sess, err := s.tracker.CreateSession(r.Context(), req.Name)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(qInt(r, "limit", 100), 1, 500)
	offset := max(qInt(r, "offset", 0), 0)
	list, err := s.tracker.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if list == nil {
		list = []roundstore.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessionsResponse{Sessions: list, Limit: limit, Offset: offset})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := s.tracker.GetSession(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if err := s.tracker.DeleteSession(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendRound(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	var req appendRoundRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON")
		return
	}
	rd, err := round.Parse(req.Outcome, req.SideACard, req.SideBCard, req.Timestamp)
	if err != nil {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeInvalidRound, err.Error()).
			WithRequestID(middleware.GetReqID(r.Context())).
			WithContext("outcome", req.Outcome).
			WithContext("side_a_card", req.SideACard).
			WithContext("side_b_card", req.SideBCard).
			Build())
		return
	}

	res, err := s.tracker.AppendRound(r.Context(), id, rd)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	rd.Index = res.Rounds - 1
	s.writeJSON(w, http.StatusCreated, appendRoundResponse{Round: rd, Analysis: res})
}

func (s *Server) handleClearRounds(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	res, err := s.tracker.Clear(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	limit := clampInt(qInt(r, "limit", s.opts.HistoryLimit), 1, 10000)
	rounds, err := s.tracker.Recent(r.Context(), id, limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []round.Round{}
	}
	s.writeJSON(w, http.StatusOK, roundsResponse{SessionID: id, Rounds: rounds, Limit: limit})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	res, err := s.tracker.Analysis(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	eng := s.tracker.Engine()
	s.writeJSON(w, http.StatusOK, analysisResponse{
		SessionID:  id,
		Forecaster: eng.ForecasterName(),
		Policy:     eng.PolicyName(),
		Analysis:   res,
		Ranked:     res.Probabilities.Sorted(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	m, err := s.tracker.Metrics(r.Context(), id)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	// Resolve the session before the headers go out so a miss is still a 404.
	if _, err := s.tracker.History(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.csv"`, id))
	if err := s.tracker.ExportCSV(r.Context(), w, id); err != nil {
		s.logger.Error("csv export failed", "session", id, "err", err)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	if _, err := s.tracker.Analysis(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.tracker.WriteReport(r.Context(), w, id); err != nil {
		s.logger.Error("report failed", "session", id, "err", err)
	}
}

func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "sessionID", "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
