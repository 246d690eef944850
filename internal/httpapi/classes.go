package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/metrics"
	"classattend/internal/report"
)

func (s *server) createClass(c *gin.Context) {
	var req struct {
		Code       string `json:"code" binding:"required"`
		Name       string `json:"name" binding:"required"`
		LecturerID string `json:"lecturer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := s.att.CreateClass(c.Request.Context(), req.Code, req.Name, req.LecturerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

func (s *server) listClasses(c *gin.Context) {
	actor := actorOf(c)
	lecturerID := actor.UserID
	if actor.Role == attendance.RoleAdmin {
		lecturerID = c.Query("lecturer_id")
	}
	classes, err := s.att.ListClasses(c.Request.Context(), lecturerID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

func (s *server) enroll(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.att.Enroll(c.Request.Context(), c.Param("id"), req.StudentID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) unenroll(c *gin.Context) {
	if err := s.att.Unenroll(c.Request.Context(), c.Param("id"), c.Param("student")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// authorizeClass aborts with the engine's error when the caller may not see the class.
func (s *server) authorizeClass(c *gin.Context) bool {
	if err := s.att.AuthorizeClass(c.Request.Context(), actorOf(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return false
	}
	return true
}

func (s *server) listSessions(c *gin.Context) {
	if !s.authorizeClass(c) {
		return
	}
	sessions, err := s.att.ListSessions(c.Request.Context(), c.Param("id"), dateRange(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *server) summary(c *gin.Context) {
	if !s.authorizeClass(c) {
		return
	}
	rows, err := s.att.Summarize(c.Request.Context(), c.Param("id"), dateRange(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": rows})
}

func (s *server) details(c *gin.Context) {
	if !s.authorizeClass(c) {
		return
	}
	rows, err := s.att.ListDetailRecords(c.Request.Context(), c.Param("id"), dateRange(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": rows})
}

// reportCSV exports either the per-student summary or the full detail grid.
func (s *server) reportCSV(c *gin.Context) {
	if !s.authorizeClass(c) {
		return
	}
	ctx := c.Request.Context()
	classID := c.Param("id")
	var buf bytes.Buffer
	switch kind := c.DefaultQuery("kind", "detail"); kind {
	case "detail":
		rows, err := s.att.ListDetailRecords(ctx, classID, dateRange(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := report.WriteDetailCSV(&buf, rows); err != nil {
			s.fail(c, err)
			return
		}
	case "summary":
		rows, err := s.att.Summarize(ctx, classID, dateRange(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := report.WriteSummaryCSV(&buf, rows); err != nil {
			s.fail(c, err)
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be detail or summary"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attendance-`+classID+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *server) generateWarnings(c *gin.Context) {
	if !s.authorizeClass(c) {
		return
	}
	created, err := s.att.GenerateWarningsForClass(c.Request.Context(), c.Param("id"), dateRange(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.WarningsCreated.Add(float64(created))
	c.JSON(http.StatusOK, gin.H{"created": created})
}
