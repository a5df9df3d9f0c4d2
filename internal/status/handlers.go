package status

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/lockstep/internal/network"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	SyncID uint64 `json:"sync_id"`
}

// PeersResponse is the body of /api/v1/peers.
type PeersResponse struct {
	Peers   []network.PeerStatus `json:"peers"`
	Waiting []network.Endpoint   `json:"waiting"`
}

// ErrorResponse is returned before the first snapshot is published.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	st := s.snapshot.Load()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no frame yet"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handlePeers handles GET /api/v1/peers
func (s *Server) handlePeers(c *gin.Context) {
	st := s.snapshot.Load()
	if st == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no frame yet"})
		return
	}
	c.JSON(http.StatusOK, PeersResponse{Peers: st.Peers, Waiting: st.Waiting})
}

// handleHealth handles GET /healthz. A group waiting for a peer is
// unhealthy but not failed: the body says which.
func (s *Server) handleHealth(c *gin.Context) {
	st := s.snapshot.Load()
	switch {
	case st == nil:
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "starting"})
	case !st.Active:
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "waiting", SyncID: st.SyncID})
	default:
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", SyncID: st.SyncID})
	}
}
