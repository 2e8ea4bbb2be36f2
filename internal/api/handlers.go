package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Guliveer/vitalis/console/internal/dispatch"
	"github.com/Guliveer/vitalis/console/internal/manager"
	"github.com/Guliveer/vitalis/console/internal/models"
)

// channelView adds a failed flag so the UI can offer a manual retry.
type channelView struct {
	models.ChannelInfo
	Failed bool `json:"failed"`
}

// metricView summarizes one metric series.
type metricView struct {
	Name      string               `json:"name"`
	Samples   int                  `json:"samples"`
	Latest    *models.MetricSample `json:"latest,omitempty"`
	Threshold *models.Threshold    `json:"threshold,omitempty"`
}

func errorBody(err error) gin.H { return gin.H{"error": err.Error()} }

// health reports liveness with the number of open channels and active alerts.
func (s *Server) health(c *gin.Context) {
	open := 0
	for _, info := range s.session.Manager.Channels() {
		if info.State == models.ChannelOpen {
			open++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"open_channels": open,
		"active_alerts": s.session.Alerts.Count(),
	})
}

func (s *Server) listChannels(c *gin.Context) {
	infos := s.session.Manager.Channels()
	out := make([]channelView, 0, len(infos))
	for _, info := range infos {
		out = append(out, channelView{ChannelInfo: info, Failed: info.State == models.ChannelFailed})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) connectChannel(c *gin.Context) {
	state, err := s.session.Manager.Connect(c.Param("name"))
	if err != nil {
		s.channelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "state": state})
}

func (s *Server) disconnectChannel(c *gin.Context) {
	if err := s.session.Manager.Disconnect(c.Param("name")); err != nil {
		s.channelError(c, err)
		return
	}
	state, _ := s.session.Manager.State(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "state": state})
}

func (s *Server) channelError(c *gin.Context, err error) {
	_ = c.Error(err)
	if errors.Is(err, manager.ErrUnknownChannel) {
		c.JSON(http.StatusNotFound, errorBody(err))
		return
	}
	c.JSON(http.StatusInternalServerError, errorBody(err))
}

func (s *Server) listMetrics(c *gin.Context) {
	names := s.session.History.Metrics()
	out := make([]metricView, 0, len(names))
	for _, name := range names {
		v := metricView{Name: name, Samples: s.session.History.Len(name)}
		if latest, ok := s.session.History.Latest(name); ok {
			v.Latest = &latest
		}
		if th, ok := s.session.Alerts.Threshold(name); ok {
			v.Threshold = &th
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{
		"capacity": s.session.History.Capacity(),
		"metrics":  out,
	})
}

func (s *Server) metricHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.History.Snapshot(c.Param("name")))
}

func (s *Server) listAlerts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, s.session.Alerts.ActiveAlerts(limit))
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Agents.All())
}

func (s *Server) agentDetail(c *gin.Context) {
	name := c.Param("name")
	c.JSON(http.StatusOK, gin.H{
		"status":  s.session.Agents.Status(name),
		"history": s.session.Agents.History(name),
	})
}

func (s *Server) dispatchCommand(c *gin.Context) {
	res, err := s.session.Dispatcher.Dispatch(c.Param("name"), models.Action(c.Param("action")))
	if err != nil {
		_ = c.Error(err)
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrEmptyAgent) || errors.Is(err, dispatch.ErrInvalidAction) {
			status = http.StatusBadRequest
		}
		c.JSON(status, errorBody(err))
		return
	}
	switch {
	case res.Attempted:
		c.JSON(http.StatusAccepted, res)
	case res.RateLimited:
		c.JSON(http.StatusTooManyRequests, res)
	default:
		c.JSON(http.StatusServiceUnavailable, res)
	}
}

func (s *Server) queueStatus(c *gin.Context) {
	q, ok := s.session.QueueStatus()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) refresh(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fallback pull is disabled"})
		return
	}
	if err := s.session.Refresh(c.Request.Context(), s.source); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agents":  len(s.session.Agents.All()),
		"metrics": len(s.session.History.Metrics()),
	})
}
