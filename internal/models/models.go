package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent   Role = "student"
	RoleFaculty   Role = "faculty"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
)

// Valid reports whether r is one of the four portal roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin, RoleDeveloper:
		return true
	}
	return false
}

// User is a portal account. Users are keyed by username in users.json, so
// the name itself is not part of the stored object.
type User struct {
	ID           string `json:"id"`
	PasswordHash string `json:"password"`
	Role         Role   `json:"role"`
}

// NewUser returns a user with a fresh id.
func NewUser(passwordHash string, role Role) User {
	return User{ID: uuid.NewString(), PasswordHash: passwordHash, Role: role}
}

// Principal is an authenticated caller.
type Principal struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// AnnualReport is one registry entry in annual_reports.json.
// CertificateSealed marks Certificate as a KMS envelope instead of plain
// base64.
type AnnualReport struct {
	Data                string  `json:"data"`
	Category            string  `json:"category"`
	ReportType          string  `json:"report_type"`
	FromDate            string  `json:"from_date"`
	ToDate              string  `json:"to_date"`
	Department          string  `json:"department"`
	Author              string  `json:"author"`
	Target              string  `json:"target"`
	TargetUsername      string  `json:"target_username"`
	Timestamp           float64 `json:"timestamp"`
	Certificate         *string `json:"certificate"`
	CertificateFilename *string `json:"certificate_filename"`
	CertificateSHA256   string  `json:"certificate_sha256,omitempty"`
	CertificateSealed   bool    `json:"certificate_sealed,omitempty"`
	Hash                string  `json:"hash"`
}

// HasCertificate reports whether a certificate is attached.
func (r AnnualReport) HasCertificate() bool {
	return r.Certificate != nil && *r.Certificate != ""
}

// AuditEntry is one line of audit_logs.json.
type AuditEntry struct {
	Timestamp float64 `json:"timestamp"`
	User      string  `json:"user"`
	Action    string  `json:"action"`
	Details   string  `json:"details"`
}

// Audit actions.
const (
	ActionLogin               = "login"
	ActionLogout              = "logout"
	ActionSubmitReport        = "submit_annual_report"
	ActionUpdateReport        = "update_annual_report"
	ActionAddStudentRecord    = "add_student_record"
	ActionAddUser             = "add_user"
	ActionRemoveUser          = "remove_user"
	ActionValidateChain       = "validate_blockchain"
	ActionAnalyzeSnapshot     = "analyze_snapshot"
	ActionRebuildChain        = "rebuild_blockchain"
	ActionArchiveViolation    = "archive_violation"
	ActionDownloadCertificate = "download_certificate"
)

// EpochSeconds converts t to the float seconds stored in the JSON files.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
