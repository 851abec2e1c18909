package api

import (
	"context"
	"net/http"

	service "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/app"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (service.Stats, error)
}

// HandleStats handles GET /stats requests.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.GetStats(r.Context())
	if err != nil {
		s.writeFailure(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
