// Package httpapi exposes the attendance engine over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/httpmiddleware"
	"classattend/internal/queue"
)

// EvidenceUploader stores files attached to absence requests.
type EvidenceUploader interface {
	UploadEvidence(ctx context.Context, filename string, data []byte) (*cloudinary.UploadResult, error)
}

// HealthCheck reports the state of one backing service.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators of the router. Queue, Evidence and Limiter may be nil.
type Deps struct {
	Attendance *attendance.Service
	Auth       *auth.Service
	Queue      queue.Queue
	Evidence   EvidenceUploader
	Limiter    *httpmiddleware.SimpleTokenBucket
	Health     map[string]HealthCheck
	SigningKey string
	Issuer     string
	Logger     zerolog.Logger
}

type server struct {
	att      *attendance.Service
	auth     *auth.Service
	q        queue.Queue
	evidence EvidenceUploader
	health   map[string]HealthCheck
	log      zerolog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	s := &server{
		att:      d.Attendance,
		auth:     d.Auth,
		q:        d.Queue,
		evidence: d.Evidence,
		health:   d.Health,
		log:      d.Logger.With().Str("component", "http").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	if d.Limiter != nil {
		v1.Use(d.Limiter.GinMiddleware(subjectOrIP(d.SigningKey, d.Issuer)))
	}
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/refresh", s.refresh)

	authed := v1.Group("", auth.Bearer(d.SigningKey, d.Issuer))

	staff := authed.Group("", auth.RequireRole(attendance.RoleLecturer, attendance.RoleAdmin))
	staff.GET("/classes", s.listClasses)
	staff.GET("/classes/:id/sessions", s.listSessions)
	staff.GET("/classes/:id/summary", s.summary)
	staff.GET("/classes/:id/details", s.details)
	staff.GET("/classes/:id/report.csv", s.reportCSV)
	staff.POST("/classes/:id/warnings/generate", s.generateWarnings)
	staff.POST("/sessions", s.createSession)
	staff.GET("/sessions/:id", s.getSession)
	staff.POST("/sessions/:id/close", s.closeSession)
	staff.GET("/sessions/:id/roster", s.roster)
	staff.PUT("/sessions/:id/records/:student", s.setStatus)
	staff.POST("/sessions/:id/mark-all-present", s.markAllPresent)
	staff.GET("/requests", s.listRequests)
	staff.POST("/requests/:id/approve", s.approve)
	staff.POST("/requests/:id/reject", s.reject)

	admin := authed.Group("", auth.RequireRole(attendance.RoleAdmin))
	admin.POST("/users", s.createUser)
	admin.POST("/classes", s.createClass)
	admin.POST("/classes/:id/enrollments", s.enroll)
	admin.DELETE("/classes/:id/enrollments/:student", s.unenroll)
	admin.DELETE("/sessions/:id/records/:student", s.deleteRecord)
	admin.GET("/records", s.searchRecords)

	student := authed.Group("", auth.RequireRole(attendance.RoleStudent))
	student.POST("/checkins", s.checkIn)
	student.POST("/requests", s.submitRequest)
	student.POST("/evidence", s.uploadEvidence)
	student.GET("/me/requests", s.myRequests)
	student.GET("/me/warnings", s.myWarnings)
	student.POST("/me/warnings/:id/seen", s.markWarningSeen)

	return r
}

func (s *server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// subjectOrIP charges callers with a valid access token by user id and
// everyone else by client address.
func subjectOrIP(signingKey, issuer string) httpmiddleware.KeyFunc {
	return func(c *gin.Context) string {
		authz := c.GetHeader("Authorization")
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			if claims, err := auth.Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer); err == nil {
				return "user:" + claims.Subject
			}
		}
		return "ip:" + httpmiddleware.ClientIP(c)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// statusFor maps engine and auth errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrState), errors.Is(err, attendance.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// resultLabel is the metrics label for an engine outcome.
func resultLabel(err error) string {
	switch attendance.Kind(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case attendance.ErrValidation:
		return "invalid"
	case attendance.ErrNotFound:
		return "not_found"
	case attendance.ErrState:
		return "state"
	case attendance.ErrConflict:
		return "conflict"
	default:
		return "forbidden"
	}
}

func (s *server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func actorOf(c *gin.Context) attendance.Actor {
	claims, _ := auth.ClaimsFrom(c)
	return claims.Actor()
}

func dateRange(c *gin.Context) attendance.DateRange {
	return attendance.DateRange{From: c.Query("from"), To: c.Query("to")}
}

// recompute asks the worker to refresh warnings for the session's class.
// Failures only cost freshness, so they are logged and not returned.
func (s *server) recompute(ctx context.Context, sessionID string) {
	if s.q == nil {
		return
	}
	sess, err := s.att.GetSession(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("recompute lookup failed")
		return
	}
	if err := s.q.Publish(ctx, queue.RecomputeWarnings(sess.ClassID)); err != nil {
		s.log.Warn().Err(err).Str("class_id", sess.ClassID).Msg("queue publish failed")
	}
}
