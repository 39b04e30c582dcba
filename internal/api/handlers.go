package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outage-ingester/internal/coordinator"
	"outage-ingester/internal/model"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, coordinator.ErrUnknownZone) {
		abort(c, http.StatusNotFound, "UNKNOWN_ZONE", err.Error())
		return
	}
	abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

// timeParam reads an RFC 3339 query parameter, falling back to def.
func timeParam(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		abort(c, http.StatusBadRequest, "BAD_PARAM", name+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) rangeParams(c *gin.Context) (time.Time, time.Time, bool) {
	now := s.opts.Clock.Now()
	start, ok := timeParam(c, "start", now)
	if !ok {
		return start, start, false
	}
	end, ok := timeParam(c, "end", start.Add(s.opts.Window))
	if !ok {
		return start, end, false
	}
	if !end.After(start) {
		abort(c, http.StatusBadRequest, "BAD_RANGE", "end must be after start")
		return start, end, false
	}
	return start, end, true
}

func (s *Server) listZones(c *gin.Context) {
	now := s.opts.Clock.Now()
	ids := s.opts.Coordinator.ZoneIDs()
	out := make([]coordinator.Status, 0, len(ids))
	for _, id := range ids {
		st, err := s.opts.Coordinator.Status(id, now)
		if err != nil {
			s.fail(c, err)
			return
		}
		out = append(out, st)
	}
	c.JSON(http.StatusOK, gin.H{"zones": out})
}

func (s *Server) zoneStatus(c *gin.Context) {
	at, ok := timeParam(c, "at", s.opts.Clock.Now())
	if !ok {
		return
	}
	st, err := s.opts.Coordinator.Status(c.Param("id"), at)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) zoneEvents(c *gin.Context) {
	start, end, ok := s.rangeParams(c)
	if !ok {
		return
	}
	events, err := s.opts.Coordinator.Events(c.Param("id"), start, end)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "events": events})
}

func (s *Server) zoneScheduled(c *gin.Context) {
	start, end, ok := s.rangeParams(c)
	if !ok {
		return
	}
	events, err := s.opts.Coordinator.ScheduledEvents(c.Param("id"), start, end)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "events": events})
}

func (s *Server) zoneGroups(c *gin.Context) {
	groups, err := s.opts.Coordinator.Groups(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) notifications(c *gin.Context) {
	out := []model.Notification{}
	if s.opts.Notifications != nil {
		out = s.opts.Notifications.Recent()
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}
