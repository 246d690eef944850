package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/metrics"
)

func (s *server) createSession(c *gin.Context) {
	var req struct {
		ClassID         string  `json:"class_id" binding:"required"`
		Date            string  `json:"date" binding:"required"`
		StartTime       string  `json:"start_time" binding:"required"`
		DurationMinutes int     `json:"duration_minutes" binding:"required"`
		PINEnabled      bool    `json:"pin_enabled"`
		PIN             *string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := attendance.NewSession{
		ClassID:         req.ClassID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		PINEnabled:      req.PINEnabled,
		PIN:             req.PIN,
	}
	if actor := actorOf(c); actor.Role == attendance.RoleLecturer {
		in.LecturerID = actor.UserID
	}
	sess, err := s.att.CreateSession(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.Sessions.WithLabelValues("opened").Inc()
	c.JSON(http.StatusCreated, sess)
}

// authorizeSession aborts with the engine's error when the caller does not
// manage the session's class.
func (s *server) authorizeSession(c *gin.Context) bool {
	if err := s.att.AuthorizeSession(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return false
	}
	return true
}

func (s *server) getSession(c *gin.Context) {
	if !s.authorizeSession(c) {
		return
	}
	sess, err := s.att.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *server) closeSession(c *gin.Context) {
	if !s.authorizeSession(c) {
		return
	}
	ctx := c.Request.Context()
	if err := s.att.CloseSession(ctx, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	metrics.Sessions.WithLabelValues("closed").Inc()
	s.recompute(ctx, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": attendance.SessionClosed})
}

func (s *server) roster(c *gin.Context) {
	if !s.authorizeSession(c) {
		return
	}
	entries, err := s.att.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roster": entries})
}

func (s *server) setStatus(c *gin.Context) {
	var req struct {
		Status string  `json:"status" binding:"required"`
		Note   *string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	rec, err := s.att.SetStatus(ctx, actorOf(c), c.Param("id"), c.Param("student"), status, req.Note)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.recompute(ctx, rec.SessionID)
	c.JSON(http.StatusOK, rec)
}

func (s *server) markAllPresent(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := s.att.MarkAllPresent(ctx, actorOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.recompute(ctx, c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *server) deleteRecord(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.att.DeleteRecord(ctx, actorOf(c), c.Param("id"), c.Param("student")); err != nil {
		s.fail(c, err)
		return
	}
	s.recompute(ctx, c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *server) searchRecords(c *gin.Context) {
	rows, err := s.att.SearchRecords(c.Request.Context(), attendance.RecordFilter{
		StudentID: c.Query("student_id"),
		SessionID: c.Query("session_id"),
		ClassID:   c.Query("class_id"),
		Range:     dateRange(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

func (s *server) checkIn(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		PIN       string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rec, err := s.att.CheckIn(ctx, actorOf(c).UserID, req.SessionID, req.PIN)
	metrics.CheckIns.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.recompute(ctx, rec.SessionID)
	c.JSON(http.StatusCreated, rec)
}
