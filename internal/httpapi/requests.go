package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/metrics"
)

const maxEvidenceBytes = 5 << 20

func (s *server) submitRequest(c *gin.Context) {
	var req struct {
		SessionID    string  `json:"session_id" binding:"required"`
		Type         string  `json:"type" binding:"required"`
		Reason       string  `json:"reason"`
		EvidencePath *string `json:"evidence_path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	typ, err := attendance.ParseRequestType(req.Type)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := s.att.SubmitRequest(c.Request.Context(), attendance.NewRequest{
		StudentID:    actorOf(c).UserID,
		SessionID:    req.SessionID,
		Type:         typ,
		Reason:       req.Reason,
		EvidencePath: req.EvidencePath,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *server) listRequests(c *gin.Context) {
	actor := actorOf(c)
	lecturerID := actor.UserID
	if actor.Role == attendance.RoleAdmin {
		lecturerID = c.Query("lecturer_id")
	}
	pendingOnly, _ := strconv.ParseBool(c.DefaultQuery("pending", "true"))
	list, err := s.att.ListRequestsForLecturer(c.Request.Context(), lecturerID, pendingOnly)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (s *server) approve(c *gin.Context) {
	s.resolve(c, attendance.RequestApproved)
}

func (s *server) reject(c *gin.Context) {
	s.resolve(c, attendance.RequestRejected)
}

func (s *server) resolve(c *gin.Context, outcome attendance.RequestStatus) {
	var req struct {
		Comment *string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	var (
		out attendance.Request
		err error
	)
	if outcome == attendance.RequestApproved {
		out, err = s.att.Approve(ctx, actorOf(c), c.Param("id"), req.Comment)
	} else {
		out, err = s.att.Reject(ctx, actorOf(c), c.Param("id"), req.Comment)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	metrics.RequestsResolved.WithLabelValues(string(outcome)).Inc()
	s.recompute(ctx, out.SessionID)
	c.JSON(http.StatusOK, out)
}

func (s *server) myRequests(c *gin.Context) {
	var status attendance.RequestStatus
	if v := c.Query("status"); v != "" {
		parsed, err := attendance.ParseRequestStatus(v)
		if err != nil {
			s.fail(c, err)
			return
		}
		status = parsed
	}
	list, err := s.att.ListRequestsForStudent(c.Request.Context(), actorOf(c).UserID, status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (s *server) myWarnings(c *gin.Context) {
	unseen, _ := strconv.ParseBool(c.Query("unseen"))
	list, err := s.att.ListWarnings(c.Request.Context(), attendance.WarningFilter{
		StudentID:  actorOf(c).UserID,
		UnseenOnly: unseen,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": list})
}

func (s *server) markWarningSeen(c *gin.Context) {
	if err := s.att.MarkWarningSeen(c.Request.Context(), actorOf(c).UserID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// uploadEvidence stores a multipart "file" and returns the path to attach
// to an absence request.
func (s *server) uploadEvidence(c *gin.Context) {
	if s.evidence == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evidence storage not configured"})
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxEvidenceBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}
	if len(data) > maxEvidenceBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	res, err := s.evidence.UploadEvidence(c.Request.Context(), header.Filename, data)
	if err != nil {
		s.log.Error().Err(err).Msg("evidence upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "evidence upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evidence_path": res.SecureURL, "public_id": res.PublicID})
}
