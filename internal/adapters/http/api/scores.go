package api

import (
	"net/http"
	"strings"

	service "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/app"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
)

// scoreRequest mirrors the OpenAPI schema for POST /scores.
type scoreRequest struct {
	Score               *int   `json:"score" validate:"required"`
	GameDurationSeconds *int   `json:"game_duration_seconds"`
	GameMode            string `json:"game_mode" validate:"max=32"`
	GameRegion          string `json:"game_region" validate:"max=512"`
	SubmissionID        string `json:"submission_id" validate:"max=128"`
}

// HandleSubmitScore handles POST /scores.
func (s *Server) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	player, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}
	var req scoreRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	res, err := s.deps.SubmitScore(r.Context(), service.ScoreSubmission{
		Player:          player,
		Score:           *req.Score,
		DurationSeconds: req.GameDurationSeconds,
		Mode:            req.GameMode,
		Region:          req.GameRegion,
		SubmissionID:    req.SubmissionID,
	})
	if err != nil {
		s.writeFailure(w, r, "submit_score", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// scoreQuery reads scope, region and country. country_code is accepted as
// an alias of country.
func scoreQuery(r *http.Request) (ranking.Query, bool) {
	q := r.URL.Query()
	kind, ok := ranking.ParseKind(q.Get("scope"))
	if !ok {
		return ranking.Query{}, false
	}
	country := q.Get("country")
	if country == "" {
		country = q.Get("country_code")
	}
	return ranking.Query{Kind: kind, Region: strings.TrimSpace(q.Get("region")), Country: country}, true
}

// HandleScores handles GET /scores?scope&region&country&user_id&limit&offset.
func (s *Server) HandleScores(w http.ResponseWriter, r *http.Request) {
	q, ok := scoreQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: codeInvalidInput, Message: "unknown scope"})
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	userID, err := intParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	rows, err := s.deps.Scores(r.Context(), q, int64(userID), limit, offset)
	if err != nil {
		s.writeFailure(w, r, "scores", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandlePosition handles GET /scores/me/position?scope&region&country.
func (s *Server) HandlePosition(w http.ResponseWriter, r *http.Request) {
	player, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}
	q, ok := scoreQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: codeInvalidInput, Message: "unknown scope"})
		return
	}
	pos, err := s.deps.Position(r.Context(), q, player.ID)
	if err != nil {
		s.writeFailure(w, r, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// HandleSummary handles GET /scores/summary?top.
func (s *Server) HandleSummary(w http.ResponseWriter, r *http.Request) {
	player, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}
	top, err := intParam(r, "top")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	sum, err := s.deps.Summary(r.Context(), player.ID, top)
	if err != nil {
		s.writeFailure(w, r, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
