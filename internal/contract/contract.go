// Package contract holds the business rules a report must satisfy before it
// is appended to the chain. The chain itself never re-checks them.
package contract

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Violation is a rule failure. Its text is shown to the submitting user.
type Violation string

func (v Violation) Error() string { return string(v) }

const (
	ErrMissingFields      Violation = "Missing required fields"
	ErrInvalidCategory    Violation = "Invalid category"
	ErrInvalidDate        Violation = "Invalid date format"
	ErrDateOrder          Violation = "From date cannot be after to date"
	ErrMissingEventDates  Violation = "Please provide valid event dates"
	ErrCertificateType    Violation = "Certificate must be PDF, PNG, JPG, or JPEG"
	ErrCertificateSize    Violation = "Certificate is too large"
	ErrReportTooShort     Violation = "Report data is too short or empty"
	ErrInvalidReportType  Violation = "Invalid report type"
	ErrInvalidDepartment  Violation = "Invalid department"
	ErrAuthorRequired     Violation = "Author is required"
	ErrEventDatesRequired Violation = "Event dates are required"
)

// DateLayout is the only accepted date form.
const DateLayout = "2006-01-02"

// DefaultReportType is assigned to reports submitted without a type.
const DefaultReportType = "Summary"

var categories = []string{"Seminar", "Workshop", "Project", "Internship", "Hackathon", "Paper Publishing"}

var reportTypes = []string{DefaultReportType}

var certificateExts = []string{".pdf", ".png", ".jpg", ".jpeg"}

// Categories returns the accepted report categories.
func Categories() []string {
	return append([]string(nil), categories...)
}

// Submission is the set of fields checked before a report is chained.
type Submission struct {
	ReportData string
	Category   string
	ReportType string
	FromDate   string
	ToDate     string
	Department string
	Author     string
}

// ValidateAnnualReport applies the submission rules in order and returns
// the first violation.
func ValidateAnnualReport(s Submission) error {
	for _, f := range []string{s.ReportData, s.Category, s.FromDate, s.ToDate, s.Department, s.Author} {
		if f == "" {
			return ErrMissingFields
		}
	}
	if !contains(categories, s.Category) {
		return ErrInvalidCategory
	}
	from, err := time.Parse(DateLayout, s.FromDate)
	if err != nil {
		return ErrInvalidDate
	}
	to, err := time.Parse(DateLayout, s.ToDate)
	if err != nil {
		return ErrInvalidDate
	}
	if from.After(to) {
		return ErrDateOrder
	}
	return nil
}

// ValidateSummary applies the stricter summary rules used for reports that
// carry a report type.
func ValidateSummary(s Submission) error {
	if utf8.RuneCountInString(strings.TrimSpace(s.ReportData)) < 10 {
		return ErrReportTooShort
	}
	if !contains(categories, s.Category) {
		return ErrInvalidCategory
	}
	if !contains(reportTypes, s.ReportType) {
		return ErrInvalidReportType
	}
	if utf8.RuneCountInString(strings.TrimSpace(s.Department)) < 2 {
		return ErrInvalidDepartment
	}
	if s.Author == "" {
		return ErrAuthorRequired
	}
	if s.FromDate == "" || s.ToDate == "" {
		return ErrEventDatesRequired
	}
	return nil
}

// ResolveDates picks the event range: a single event date wins over an
// explicit from/to pair.
func ResolveDates(eventDate, from, to string) (string, string, error) {
	if eventDate != "" {
		return eventDate, eventDate, nil
	}
	if from == "" || to == "" {
		return "", "", ErrMissingEventDates
	}
	return from, to, nil
}

// CertificateAllowed reports whether filename has an accepted extension.
// The match is case-sensitive.
func CertificateAllowed(filename string) bool {
	for _, ext := range certificateExts {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
