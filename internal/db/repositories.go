package db

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/auth"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

var (
	ErrUserExists     = errors.New("db: username already exists")
	ErrUserNotFound   = errors.New("db: user does not exist")
	ErrReportNotFound = errors.New("db: report not found")
	ErrArchiveUnknown = errors.New("db: archive not found")
)

// ── UserRepository ────────────────────────────────────────────────────────────

// DefaultUsers are created, with hashed passwords, when users.json is absent.
var DefaultUsers = []struct {
	Username string
	Password string
	Role     models.Role
}{
	{"student1", "pass123", models.RoleStudent},
	{"faculty1", "pass456", models.RoleFaculty},
	{"admin1", "pass789", models.RoleAdmin},
	{"developer1", "pass101", models.RoleDeveloper},
}

// UserView is a user without credentials.
type UserView struct {
	Username string      `json:"username"`
	ID       string      `json:"id"`
	Role     models.Role `json:"role"`
}

type UserRepository struct {
	mu    sync.RWMutex
	path  string
	users map[string]models.User
	log   *zap.Logger
}

// NewUserRepository loads users.json, seeding defaults when it is missing
// and migrating entries without an id or with a plaintext password.
func NewUserRepository(path string, log *zap.Logger) (*UserRepository, error) {
	r := &UserRepository{path: path, log: log}
	users := map[string]models.User{}
	found, err := readJSON(path, &users, log)
	if err != nil {
		return nil, err
	}
	if !found {
		users, err = defaultUsers()
		if err != nil {
			return nil, err
		}
		r.users = users
		if err := r.save(); err != nil {
			return nil, err
		}
		log.Info("seeded default users", zap.Int("count", len(users)))
		return r, nil
	}

	r.users = users
	migrated := 0
	for name, u := range users {
		changed := false
		if u.ID == "" {
			u.ID = uuid.NewString()
			changed = true
		}
		if !auth.IsPasswordHash(u.PasswordHash) {
			hash, err := auth.HashPassword(u.PasswordHash)
			if err != nil {
				return nil, fmt.Errorf("db: migrate user %s: %w", name, err)
			}
			u.PasswordHash = hash
			changed = true
		}
		if changed {
			users[name] = u
			migrated++
		}
	}
	if migrated > 0 {
		if err := r.save(); err != nil {
			return nil, err
		}
		log.Info("migrated legacy user entries", zap.Int("count", migrated))
	}
	return r, nil
}

func defaultUsers() (map[string]models.User, error) {
	out := make(map[string]models.User, len(DefaultUsers))
	for _, d := range DefaultUsers {
		hash, err := auth.HashPassword(d.Password)
		if err != nil {
			return nil, err
		}
		out[d.Username] = models.NewUser(hash, d.Role)
	}
	return out, nil
}

func (r *UserRepository) save() error {
	return writeJSON(r.path, r.users)
}

// Authenticate checks a username/password pair.
func (r *UserRepository) Authenticate(username, password string) (models.Principal, error) {
	r.mu.RLock()
	u, ok := r.users[username]
	r.mu.RUnlock()
	if !ok || !auth.CheckPassword(password, u.PasswordHash) {
		return models.Principal{}, auth.ErrInvalidCredentials
	}
	return models.Principal{UserID: u.ID, Username: username, Role: u.Role}, nil
}

func (r *UserRepository) Get(username string) (UserView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return UserView{}, false
	}
	return UserView{Username: username, ID: u.ID, Role: u.Role}, true
}

// List returns every user sorted by username.
func (r *UserRepository) List() []UserView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserView, 0, len(r.users))
	for name, u := range r.users {
		out = append(out, UserView{Username: name, ID: u.ID, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (r *UserRepository) Add(username, password string, role models.Role) (UserView, error) {
	if !role.Valid() {
		return UserView{}, fmt.Errorf("db: invalid role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return UserView{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; ok {
		return UserView{}, ErrUserExists
	}
	u := models.NewUser(hash, role)
	r.users[username] = u
	if err := r.save(); err != nil {
		delete(r.users, username)
		return UserView{}, err
	}
	return UserView{Username: username, ID: u.ID, Role: role}, nil
}

func (r *UserRepository) Remove(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.users, username)
	if err := r.save(); err != nil {
		r.users[username] = u
		return err
	}
	return nil
}

// ── ReportRepository ──────────────────────────────────────────────────────────

type ReportRepository struct {
	mu   sync.RWMutex
	path string
	reg  *models.Registry
	seen stamp
	log  *zap.Logger
}

// NewReportRepository loads annual_reports.json; a missing file is an empty
// registry.
func NewReportRepository(path string, log *zap.Logger) (*ReportRepository, error) {
	r := &ReportRepository{path: path, reg: models.NewRegistry(), log: log}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// refresh reloads the registry when another process rewrote the file.
// Callers hold the write lock.
func (r *ReportRepository) refresh() error {
	st := statStamp(r.path)
	if st == r.seen && r.reg != nil {
		return nil
	}
	reg := models.NewRegistry()
	if _, err := readJSON(r.path, reg, r.log); err != nil {
		return err
	}
	r.reg, r.seen = reg, statStamp(r.path)
	return nil
}

func (r *ReportRepository) persist(reg *models.Registry) error {
	if err := writeJSON(r.path, reg); err != nil {
		return err
	}
	r.reg, r.seen = reg, statStamp(r.path)
	return nil
}

// read runs fn against the freshest registry.
func (r *ReportRepository) read(fn func(reg *models.Registry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	fn(r.reg)
	return nil
}

func (r *ReportRepository) Path() string { return r.path }

// Put stores a report and persists the registry. The in-memory state is
// left untouched if the write fails.
func (r *ReportRepository) Put(id string, rep models.AnnualReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	next := r.reg.Clone()
	next.Put(id, rep)
	return r.persist(next)
}

func (r *ReportRepository) Get(id string) (models.AnnualReport, error) {
	var (
		rep models.AnnualReport
		ok  bool
	)
	if err := r.read(func(reg *models.Registry) { rep, ok = reg.Get(id) }); err != nil {
		return models.AnnualReport{}, err
	}
	if !ok {
		return models.AnnualReport{}, ErrReportNotFound
	}
	return rep, nil
}

// The list helpers serve the last good state when the file cannot be read.

func (r *ReportRepository) List() []models.RegistryEntry {
	var out []models.RegistryEntry
	r.logErr(r.read(func(reg *models.Registry) { out = reg.Entries() }))
	return out
}

func (r *ReportRepository) ListByTarget(target string) []models.RegistryEntry {
	var out []models.RegistryEntry
	r.logErr(r.read(func(reg *models.Registry) {
		out = reg.Filter(func(a models.AnnualReport) bool { return a.Target == target })
	}))
	return out
}

func (r *ReportRepository) ListByAuthor(author string) []models.RegistryEntry {
	var out []models.RegistryEntry
	r.logErr(r.read(func(reg *models.Registry) {
		out = reg.Filter(func(a models.AnnualReport) bool { return a.Author == author })
	}))
	return out
}

// Snapshot returns an independent copy of the registry.
func (r *ReportRepository) Snapshot() *models.Registry {
	var out *models.Registry
	if err := r.read(func(reg *models.Registry) { out = reg.Clone() }); err != nil {
		r.logErr(err)
		r.mu.RLock()
		out = r.reg.Clone()
		r.mu.RUnlock()
	}
	return out
}

func (r *ReportRepository) logErr(err error) {
	if err != nil {
		r.log.Warn("reload reports failed", zap.String("file", r.path), zap.Error(err))
	}
}

// SetHashes writes rebuilt block hashes back onto their reports. Ids that
// vanished since the snapshot are ignored.
func (r *ReportRepository) SetHashes(hashes map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	next := r.reg.Clone()
	for id, h := range hashes {
		if rep, ok := next.Get(id); ok {
			rep.Hash = h
			next.Put(id, rep)
		}
	}
	return r.persist(next)
}

// ── AuditLogRepository ────────────────────────────────────────────────────────

type AuditLogRepository struct {
	mu   sync.Mutex
	path string
	logs []models.AuditEntry
	seen stamp
	now  func() time.Time
	log  *zap.Logger
}

func NewAuditLogRepository(path string, log *zap.Logger) (*AuditLogRepository, error) {
	r := &AuditLogRepository{path: path, now: time.Now, log: log}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AuditLogRepository) refresh() error {
	st := statStamp(r.path)
	if st == r.seen && !st.missing() {
		return nil
	}
	var logs []models.AuditEntry
	found, err := readJSON(r.path, &logs, r.log)
	if err != nil {
		return err
	}
	if !found {
		logs = nil
	}
	r.logs, r.seen = logs, statStamp(r.path)
	return nil
}

// Append records an action and persists the whole log.
func (r *AuditLogRepository) Append(user, action, details string) (models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return models.AuditEntry{}, err
	}
	e := models.AuditEntry{
		Timestamp: models.EpochSeconds(r.now()),
		User:      user,
		Action:    action,
		Details:   details,
	}
	next := append(append([]models.AuditEntry(nil), r.logs...), e)
	if err := writeJSON(r.path, next); err != nil {
		return models.AuditEntry{}, err
	}
	r.logs, r.seen = next, statStamp(r.path)
	return e, nil
}

// List returns all entries, oldest first.
func (r *AuditLogRepository) List() []models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		r.log.Warn("reload audit log failed", zap.Error(err))
	}
	return append([]models.AuditEntry(nil), r.logs...)
}

// ── ResultRepository ──────────────────────────────────────────────────────────

// ResultRepository keeps the last attack simulation and the last snapshot
// analysis. Each file holds exactly one result and is read on demand.
type ResultRepository struct {
	mu           sync.Mutex
	attackPath   string
	snapshotPath string
	log          *zap.Logger
}

func NewResultRepository(attackPath, snapshotPath string, log *zap.Logger) *ResultRepository {
	return &ResultRepository{attackPath: attackPath, snapshotPath: snapshotPath, log: log}
}

func (r *ResultRepository) SaveAttack(res ledger.AttackResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeJSON(r.attackPath, res)
}

// LastAttack returns nil when no simulation has been stored.
func (r *ResultRepository) LastAttack() (*ledger.AttackResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res ledger.AttackResult
	found, err := readJSON(r.attackPath, &res, r.log)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

func (r *ResultRepository) SaveSnapshot(s ledger.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeJSON(r.snapshotPath, s)
}

// LastSnapshot returns nil when no analysis has been stored.
func (r *ResultRepository) LastSnapshot() (*ledger.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s ledger.Snapshot
	found, err := readJSON(r.snapshotPath, &s, r.log)
	if err != nil || !found {
		return nil, err
	}
	return &s, nil
}

// ── ArchiveRepository ─────────────────────────────────────────────────────────

type ArchiveRepository struct {
	mu      sync.Mutex
	path    string
	records []models.ArchiveRecord
	seen    stamp
	log     *zap.Logger
}

func NewArchiveRepository(path string, log *zap.Logger) (*ArchiveRepository, error) {
	r := &ArchiveRepository{path: path, log: log}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ArchiveRepository) refresh() error {
	st := statStamp(r.path)
	if st == r.seen && !st.missing() {
		return nil
	}
	var records []models.ArchiveRecord
	found, err := readJSON(r.path, &records, r.log)
	if err != nil {
		return err
	}
	if !found {
		records = nil
	}
	r.records, r.seen = records, statStamp(r.path)
	return nil
}

func (r *ArchiveRepository) current() []models.ArchiveRecord {
	if err := r.refresh(); err != nil {
		r.log.Warn("reload archives failed", zap.Error(err))
	}
	return r.records
}

func (r *ArchiveRepository) persist(next []models.ArchiveRecord) error {
	if err := writeJSON(r.path, next); err != nil {
		return err
	}
	r.records, r.seen = next, statStamp(r.path)
	return nil
}

func (r *ArchiveRepository) Create(rec models.ArchiveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	return r.persist(append(append([]models.ArchiveRecord(nil), r.records...), rec))
}

func (r *ArchiveRepository) GetByID(id uuid.UUID) (models.ArchiveRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.current() {
		if rec.ID == id {
			return rec, nil
		}
	}
	return models.ArchiveRecord{}, ErrArchiveUnknown
}

// update applies fn to the record with id and persists the result.
func (r *ArchiveRepository) update(id uuid.UUID, fn func(*models.ArchiveRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	for i := range r.records {
		if r.records[i].ID != id {
			continue
		}
		next := append([]models.ArchiveRecord(nil), r.records...)
		fn(&next[i])
		return r.persist(next)
	}
	return ErrArchiveUnknown
}

// MarkVerified records the outcome of an integrity check.
func (r *ArchiveRepository) MarkVerified(id uuid.UUID, status models.ArchiveStatus, errMsg string, at time.Time) error {
	return r.update(id, func(rec *models.ArchiveRecord) {
		rec.Status = status
		rec.ErrMsg = errMsg
		rec.VerifiedAt = &at
	})
}

// Latest returns up to n records, newest first.
func (r *ArchiveRepository) Latest(n int) []models.ArchiveRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := r.current()
	out := make([]models.ArchiveRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, records[i])
	}
	return out
}

// ListExpired returns archives created before cutoff that still hold an
// object in storage.
func (r *ArchiveRepository) ListExpired(cutoff time.Time) []models.ArchiveRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ArchiveRecord
	for _, rec := range r.current() {
		if rec.Status != models.ArchiveStatusExpired && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

func (r *ArchiveRepository) MarkExpired(id uuid.UUID) error {
	return r.update(id, func(rec *models.ArchiveRecord) {
		rec.Status = models.ArchiveStatusExpired
	})
}
