package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/middleware"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/auth"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/kms"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/metrics"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/queue"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

// Deps are the collaborators shared by every handler. KMS and Queue are
// optional.
type Deps struct {
	Chain   *ledger.Chain
	DB      *db.DB
	KMS     *kms.Encryptor
	Queue   queue.Enqueuer
	Metrics *metrics.Metrics
	Hub     *Hub
	Log     *zap.Logger

	JWTSecret string
	JWTTTL    time.Duration
	// RebuildDebounce collapses rebuild requests from a burst of
	// submissions into one task.
	RebuildDebounce time.Duration
	// MaxCertificateBytes caps a single uploaded certificate.
	MaxCertificateBytes int64
}

type Handlers struct {
	chain    *ledger.Chain
	db       *db.DB
	kms      *kms.Encryptor
	queue    queue.Enqueuer
	metrics  *metrics.Metrics
	hub      *Hub
	log      *zap.Logger
	secret   string
	ttl      time.Duration
	debounce time.Duration
	maxCert  int64
	now      func() time.Time
}

const defaultMaxCertificateBytes = 10 << 20

func NewHandlers(d Deps) *Handlers {
	hub := d.Hub
	if hub == nil {
		hub = NewHub(d.Log)
	}
	maxCert := d.MaxCertificateBytes
	if maxCert <= 0 {
		maxCert = defaultMaxCertificateBytes
	}
	h := &Handlers{
		chain:    d.Chain,
		db:       d.DB,
		kms:      d.KMS,
		queue:    d.Queue,
		metrics:  d.Metrics,
		hub:      hub,
		log:      d.Log,
		secret:   d.JWTSecret,
		ttl:      d.JWTTTL,
		debounce: d.RebuildDebounce,
		maxCert:  maxCert,
		now:      time.Now,
	}
	h.metrics.SetChainLength(h.chain.Len())
	return h
}

// ── Error helpers ─────────────────────────────────────────────────────────────

type errResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ReqID   string `json:"request_id,omitempty"`
}

func apiErr(c echo.Context, code int, msg string) error {
	reqID, _ := c.Get(middleware.ContextKeyRequestID).(string)
	return c.JSON(code, errResponse{Code: code, Message: msg, ReqID: reqID})
}

type messageResponse struct {
	Message string `json:"message"`
}

// mustPrincipal extracts the authenticated caller. Guarded routes always
// have one; a missing value means the route was registered without JWTAuth.
func mustPrincipal(c echo.Context) (models.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return models.Principal{}, echo.NewHTTPError(http.StatusInternalServerError, "auth context missing")
	}
	return p, nil
}

// audit records an action. Audit failures are logged and never fail the
// request that caused them.
func (h *Handlers) audit(user, action, details string) {
	if _, err := h.db.AuditLogs.Append(user, action, details); err != nil {
		h.log.Error("audit append failed",
			zap.String("user", user),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// requestRebuild schedules a sealed chain rebuild when a queue is configured.
func (h *Handlers) requestRebuild(ctx context.Context, reason, by string) {
	if h.queue == nil {
		return
	}
	p := queue.RebuildPayload{Reason: reason, RequestedBy: by, RequestedAt: h.now().UTC()}
	var opts []asynq.Option
	if h.debounce > 0 {
		opts = append(opts, asynq.ProcessIn(h.debounce))
	}
	if _, err := queue.EnqueueRebuild(ctx, h.queue, p, h.debounce, opts...); err != nil {
		h.log.Error("enqueue rebuild failed", zap.String("reason", reason), zap.Error(err))
	}
}

// ── Session Handlers ──────────────────────────────────────────────────────────

type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      models.Principal `json:"user"`
}

func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return apiErr(c, http.StatusBadRequest, "Username and password are required")
	}

	p, err := h.db.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		return apiErr(c, http.StatusUnauthorized, "Invalid credentials")
	}

	token, err := auth.IssueJWT(h.secret, p, h.ttl)
	if err != nil {
		h.log.Error("issue token", zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to issue token")
	}
	h.audit(p.Username, models.ActionLogin, "User "+p.Username+" logged in")
	return c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: h.now().Add(h.ttl).UTC(),
		User:      p,
	})
}

// Logout only records the event; tokens are stateless and expire on their own.
func (h *Handlers) Logout(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	h.audit(p.Username, models.ActionLogout, "User "+p.Username+" logged out")
	return c.JSON(http.StatusOK, messageResponse{Message: "You have been logged out successfully"})
}

// ── Dashboard ─────────────────────────────────────────────────────────────────

// reportView hides the certificate blob; it is fetched through the
// certificate download route instead.
type reportView struct {
	ID string `json:"report_id"`
	models.AnnualReport
	Certificate    *string `json:"certificate,omitempty"`
	HasCertificate bool    `json:"has_certificate"`
}

func reportViews(entries []models.RegistryEntry) []reportView {
	out := make([]reportView, 0, len(entries))
	for _, e := range entries {
		out = append(out, reportView{ID: e.ID, AnnualReport: e.Report, HasCertificate: e.Report.HasCertificate()})
	}
	return out
}

type StudentDashboard struct {
	Role          models.Role            `json:"role"`
	Records       []ledger.StudentRecord `json:"records"`
	AnnualReports []reportView           `json:"annual_reports"`
}

type FacultyDashboard struct {
	Role          models.Role     `json:"role"`
	Reports       []ledger.Report `json:"reports"`
	AnnualReports []reportView    `json:"annual_reports"`
	Users         []db.UserView   `json:"users"`
}

type AdminDashboard struct {
	Role          models.Role         `json:"role"`
	Users         []db.UserView       `json:"users"`
	Logs          []models.AuditEntry `json:"logs"`
	AnnualReports []reportView        `json:"annual_reports"`
}

type DeveloperDashboard struct {
	Role           models.Role            `json:"role"`
	Validation     ledger.Validation      `json:"validation"`
	Metrics        ledger.QualityMetrics  `json:"metrics"`
	Logs           []models.AuditEntry    `json:"logs"`
	AttackResult   *ledger.AttackResult   `json:"attack_result"`
	SnapshotResult *ledger.Snapshot       `json:"snapshot_result"`
	Archives       []models.ArchiveRecord `json:"archives"`
}

// Dashboard returns the role specific view of the portal.
func (h *Handlers) Dashboard(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}

	switch p.Role {
	case models.RoleStudent:
		return c.JSON(http.StatusOK, StudentDashboard{
			Role:          p.Role,
			Records:       h.chain.StudentRecords(),
			AnnualReports: reportViews(h.db.Reports.ListByTarget("Student")),
		})
	case models.RoleFaculty:
		return c.JSON(http.StatusOK, FacultyDashboard{
			Role:          p.Role,
			Reports:       h.chain.Reports(),
			AnnualReports: reportViews(h.db.Reports.ListByAuthor(p.Username)),
			Users:         h.db.Users.List(),
		})
	case models.RoleAdmin:
		return c.JSON(http.StatusOK, AdminDashboard{
			Role:          p.Role,
			Users:         h.db.Users.List(),
			Logs:          h.db.AuditLogs.List(),
			AnnualReports: reportViews(h.db.Reports.List()),
		})
	case models.RoleDeveloper:
		// Unreadable result files degrade to "no result" as the dashboard
		// must still render.
		attack, err := h.db.Results.LastAttack()
		if err != nil {
			h.log.Warn("load attack result", zap.Error(err))
		}
		snapshot, err := h.db.Results.LastSnapshot()
		if err != nil {
			h.log.Warn("load snapshot result", zap.Error(err))
		}
		return c.JSON(http.StatusOK, DeveloperDashboard{
			Role:           p.Role,
			Validation:     h.validate(),
			Metrics:        h.chain.QualityMetrics(),
			Logs:           h.db.AuditLogs.List(),
			AttackResult:   attack,
			SnapshotResult: snapshot,
			Archives:       h.db.Archives.Latest(10),
		})
	}
	return apiErr(c, http.StatusForbidden, "Unauthorized")
}

func (h *Handlers) validate() ledger.Validation {
	start := time.Now()
	v := h.chain.Validate()
	h.metrics.ObserveValidation(v.Valid, time.Since(start))
	return v
}

// ── User Handlers ─────────────────────────────────────────────────────────────

type CreateUserRequest struct {
	Username string      `json:"username" form:"username"`
	Password string      `json:"password" form:"password"`
	Role     models.Role `json:"role"     form:"role"`
}

func (h *Handlers) CreateUser(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" || req.Role == "" {
		return apiErr(c, http.StatusBadRequest, "All fields are required")
	}
	if !req.Role.Valid() {
		return apiErr(c, http.StatusBadRequest, "Invalid role")
	}

	u, err := h.db.Users.Add(req.Username, req.Password, req.Role)
	if errors.Is(err, db.ErrUserExists) {
		return apiErr(c, http.StatusConflict, "Username already exists")
	}
	if err != nil {
		h.log.Error("add user", zap.String("username", req.Username), zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to add user")
	}

	h.audit(p.Username, models.ActionAddUser, "User "+req.Username+" added with role "+string(req.Role))
	return c.JSON(http.StatusCreated, u)
}

func (h *Handlers) DeleteUser(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	username := c.Param("username")
	if username == "" {
		return apiErr(c, http.StatusBadRequest, "Username is required")
	}
	if username == p.Username {
		return apiErr(c, http.StatusBadRequest, "Cannot remove your own account")
	}

	err = h.db.Users.Remove(username)
	if errors.Is(err, db.ErrUserNotFound) {
		return apiErr(c, http.StatusNotFound, "User does not exist")
	}
	if err != nil {
		h.log.Error("remove user", zap.String("username", username), zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to remove user")
	}

	h.audit(p.Username, models.ActionRemoveUser, "User "+username+" removed")
	return c.JSON(http.StatusOK, messageResponse{Message: "User removed successfully"})
}
