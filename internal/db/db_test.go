package db_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/auth"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

func open(t *testing.T, dir string) *db.DB {
	t.Helper()
	d, err := db.Open(config.DataConfig{Dir: dir}, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestOpen_SeedsDefaultUsers(t *testing.T) {
	dir := t.TempDir()
	d := open(t, dir)

	users := d.Users.List()
	require.Len(t, users, 4)
	assert.Equal(t, "admin1", users[0].Username)

	p, err := d.Users.Authenticate("faculty1", "pass456")
	require.NoError(t, err)
	assert.Equal(t, models.RoleFaculty, p.Role)
	assert.NotEmpty(t, p.UserID)

	raw, err := os.ReadFile(filepath.Join(dir, db.UsersFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "pass456", "passwords must be stored hashed")
}

func TestUsers_MigratesLegacyFile(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"alice": {"password": "secret1", "role": "admin"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, db.UsersFile), []byte(legacy), 0o644))

	d := open(t, dir)
	p, err := d.Users.Authenticate("alice", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, p.UserID)

	var stored map[string]models.User
	raw, err := os.ReadFile(filepath.Join(dir, db.UsersFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.True(t, auth.IsPasswordHash(stored["alice"].PasswordHash))
	assert.Equal(t, p.UserID, stored["alice"].ID)
}

func TestUsers_AuthenticateFailures(t *testing.T) {
	d := open(t, t.TempDir())
	_, err := d.Users.Authenticate("faculty1", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = d.Users.Authenticate("ghost", "pass456")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestUsers_AddRemove(t *testing.T) {
	dir := t.TempDir()
	d := open(t, dir)

	u, err := d.Users.Add("student2", "pw", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "student2", u.Username)

	_, err = d.Users.Add("student2", "pw", models.RoleStudent)
	assert.ErrorIs(t, err, db.ErrUserExists)
	_, err = d.Users.Add("x", "pw", "root")
	assert.Error(t, err)

	// Survives a reload.
	reopened := open(t, dir)
	_, ok := reopened.Users.Get("student2")
	assert.True(t, ok)

	require.NoError(t, d.Users.Remove("student2"))
	assert.ErrorIs(t, d.Users.Remove("student2"), db.ErrUserNotFound)
}

func TestOpen_QuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, db.AuditLogsFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	d := open(t, dir)
	assert.Empty(t, d.AuditLogs.List())

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestReports_PersistInInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	d := open(t, dir)

	require.NoError(t, d.Reports.Put("b", models.AnnualReport{Data: "one", Author: "faculty1", Target: "Student"}))
	require.NoError(t, d.Reports.Put("a", models.AnnualReport{Data: "two", Author: "admin1", Target: "Faculty"}))
	require.NoError(t, d.Reports.Put("b", models.AnnualReport{Data: "one v2", Author: "faculty1", Target: "Student"}))

	reopened := open(t, dir)
	entries := reopened.Reports.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "one v2", entries[0].Report.Data)

	assert.Len(t, reopened.Reports.ListByTarget("Student"), 1)
	assert.Len(t, reopened.Reports.ListByAuthor("admin1"), 1)

	_, err := reopened.Reports.Get("zzz")
	assert.ErrorIs(t, err, db.ErrReportNotFound)
}

func TestReports_SetHashes(t *testing.T) {
	d := open(t, t.TempDir())
	require.NoError(t, d.Reports.Put("r1", models.AnnualReport{Data: "x"}))

	require.NoError(t, d.Reports.SetHashes(map[string]string{"r1": "h1", "gone": "h2"}))
	rep, err := d.Reports.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "h1", rep.Hash)
	assert.Equal(t, 1, d.Reports.Snapshot().Len())
}

func TestAuditLogs_Append(t *testing.T) {
	dir := t.TempDir()
	d := open(t, dir)

	e, err := d.AuditLogs.Append("admin1", models.ActionAddUser, "User x added with role student")
	require.NoError(t, err)
	assert.NotZero(t, e.Timestamp)

	logs := open(t, dir).AuditLogs.List()
	require.Len(t, logs, 1)
	assert.Equal(t, "add_user", logs[0].Action)
}

func TestResults_RoundTrip(t *testing.T) {
	d := open(t, t.TempDir())

	none, err := d.Results.LastAttack()
	require.NoError(t, err)
	assert.Nil(t, none)

	res := ledger.AttackResult{AttackType: "invalid_hash", Result: "Invalid hash detected: Hash mismatch at block 1"}
	require.NoError(t, d.Results.SaveAttack(res))
	got, err := d.Results.LastAttack()
	require.NoError(t, err)
	assert.Equal(t, &res, got)

	snap := ledger.Snapshot{SnapshotName: "s", ChainLength: 1, Validation: ledger.Validation{Valid: true}}
	require.NoError(t, d.Results.SaveSnapshot(snap))
	gotSnap, err := d.Results.LastSnapshot()
	require.NoError(t, err)
	assert.Equal(t, &snap, gotSnap)
}

func TestArchives_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	d := open(t, dir)

	rec := models.ArchiveRecord{ID: uuid.New(), Key: "k", Status: models.ArchiveStatusStored, CreatedAt: time.Now().UTC()}
	require.NoError(t, d.Archives.Create(rec))
	require.NoError(t, d.Archives.MarkVerified(rec.ID, models.ArchiveStatusVerified, "", time.Now()))
	assert.ErrorIs(t, d.Archives.MarkVerified(uuid.New(), models.ArchiveStatusVerified, "", time.Now()), db.ErrArchiveUnknown)

	got, err := open(t, dir).Archives.GetByID(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStatusVerified, got.Status)
	assert.NotNil(t, got.VerifiedAt)
	assert.Len(t, d.Archives.Latest(5), 1)
}

func TestArchives_Expire(t *testing.T) {
	d := open(t, t.TempDir())
	old := models.ArchiveRecord{ID: uuid.New(), Key: "old", Status: models.ArchiveStatusVerified, CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := models.ArchiveRecord{ID: uuid.New(), Key: "fresh", Status: models.ArchiveStatusStored, CreatedAt: time.Now()}
	require.NoError(t, d.Archives.Create(old))
	require.NoError(t, d.Archives.Create(fresh))

	expired := d.Archives.ListExpired(time.Now().Add(-24 * time.Hour))
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].Key)

	require.NoError(t, d.Archives.MarkExpired(old.ID))
	assert.Empty(t, d.Archives.ListExpired(time.Now().Add(-24*time.Hour)))
	assert.ErrorIs(t, d.Archives.MarkExpired(uuid.New()), db.ErrArchiveUnknown)
}

func TestRepositories_SeeWritesFromAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	api := open(t, dir)
	worker := open(t, dir)

	require.NoError(t, api.Reports.Put("r1", models.AnnualReport{Data: "x", Author: "faculty1"}))
	require.NoError(t, worker.Reports.SetHashes(map[string]string{"r1": "h1"}))

	rep, err := api.Reports.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "h1", rep.Hash)

	_, err = api.AuditLogs.Append("admin1", models.ActionAddUser, "first")
	require.NoError(t, err)
	_, err = worker.AuditLogs.Append("system", models.ActionRebuildChain, "second")
	require.NoError(t, err)
	assert.Len(t, api.AuditLogs.List(), 2)

	rec := models.ArchiveRecord{ID: uuid.New(), Key: "k", Status: models.ArchiveStatusStored, CreatedAt: time.Now().UTC()}
	require.NoError(t, worker.Archives.Create(rec))
	assert.Len(t, api.Archives.Latest(5), 1)
}
