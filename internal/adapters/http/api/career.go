package api

import (
	"net/http"
	"time"

	service "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/app"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
)

type groupRequest struct {
	FlagsCount int  `json:"flags_count"`
	Correct    int  `json:"correct"`
	HadErrors  bool `json:"had_errors"`
}

// stageCompleteRequest mirrors the OpenAPI schema for
// POST /career/stages/{stage_id}/complete.
type stageCompleteRequest struct {
	StageID      string         `json:"stage_id" validate:"max=64"`
	Score        *int           `json:"score" validate:"required"`
	HintsUsed    *int           `json:"hints_used" validate:"required"`
	TimeSeconds  *int           `json:"time_seconds" validate:"required"`
	Groups       []groupRequest `json:"groups"`
	GameMode     string         `json:"game_mode" validate:"max=32"`
	GameRegion   string         `json:"game_region" validate:"max=512"`
	SubmissionID string         `json:"submission_id" validate:"max=128"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

// HandleCompleteStage handles POST /career/stages/{stage_id}/complete.
func (s *Server) HandleCompleteStage(w http.ResponseWriter, r *http.Request) {
	player, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}
	var req stageCompleteRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	in := service.StageCompletion{
		Player:       player,
		PathStageID:  r.PathValue("stage_id"),
		StageID:      req.StageID,
		Score:        *req.Score,
		HintsUsed:    *req.HintsUsed,
		TimeSeconds:  *req.TimeSeconds,
		Groups:       make([]model.Group, len(req.Groups)),
		Mode:         req.GameMode,
		Region:       req.GameRegion,
		SubmissionID: req.SubmissionID,
	}
	for i, g := range req.Groups {
		in.Groups[i] = model.Group{FlagsCount: g.FlagsCount, Correct: g.Correct, HadErrors: g.HadErrors}
	}
	if req.CompletedAt != nil {
		in.CompletedAt = *req.CompletedAt
	}

	res, err := s.deps.CompleteStage(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, "complete_stage", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMyStats handles GET /career/me/stats.
func (s *Server) HandleMyStats(w http.ResponseWriter, r *http.Request) {
	player, err := identity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}
	st, err := s.deps.MyStats(r.Context(), player.ID)
	if err != nil {
		s.writeFailure(w, r, "my_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleCareerLeaderboard handles GET /career/leaderboard?limit&offset.
func (s *Server) HandleCareerLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	rows, err := s.deps.CareerLeaderboard(r.Context(), limit, offset)
	if err != nil {
		s.writeFailure(w, r, "career_leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
