package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/contract"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/db"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/worm"
)

const defaultCertificateName = "certificate.pdf"

// reportForm is the multipart body of a submission or update.
type reportForm struct {
	ReportData     string
	Category       string
	ReportType     string
	Target         string
	TargetUsername string
	EventDate      string
	FromDate       string
	ToDate         string
	Department     string
}

func readReportForm(c echo.Context) reportForm {
	return reportForm{
		ReportData:     c.FormValue("report_data"),
		Category:       c.FormValue("category"),
		ReportType:     c.FormValue("report_type"),
		Target:         c.FormValue("target"),
		TargetUsername: c.FormValue("target_username"),
		EventDate:      c.FormValue("event_date"),
		FromDate:       c.FormValue("from_date"),
		ToDate:         c.FormValue("to_date"),
		Department:     c.FormValue("department"),
	}
}

// certificate is an uploaded file ready to be stored in the registry.
type certificate struct {
	Encoded  string
	Filename string
	SHA256   string
	Sealed   bool
}

// readCertificate returns nil when no file was uploaded.
func (h *Handlers) readCertificate(c echo.Context, reportID string) (*certificate, error) {
	fh, err := c.FormFile("certificate")
	if errors.Is(err, http.ErrMissingFile) || (err == nil && fh.Filename == "") {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	if !contract.CertificateAllowed(fh.Filename) {
		return nil, contract.ErrCertificateType
	}
	if fh.Size > h.maxCert {
		return nil, contract.ErrCertificateSize
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open certificate: %w", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, h.maxCert+1))
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	if int64(len(raw)) > h.maxCert {
		return nil, contract.ErrCertificateSize
	}

	cert := &certificate{Filename: filepath.Base(fh.Filename), SHA256: worm.ObjectHash(raw)}
	if h.kms == nil {
		cert.Encoded = base64.StdEncoding.EncodeToString(raw)
		return cert, nil
	}
	cert.Encoded, err = h.kms.Seal(raw, []byte(reportID))
	if err != nil {
		return nil, fmt.Errorf("seal certificate: %w", err)
	}
	cert.Sealed = true
	return cert, nil
}

type ReportResponse struct {
	ReportID string       `json:"report_id"`
	Block    ledger.Block `json:"block"`
}

// SubmitReport validates a new annual report, appends it to the chain and
// records it in the registry.
func (h *Handlers) SubmitReport(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	reportID := uuid.NewString()
	return h.saveReport(c, p, reportID, nil)
}

// UpdateReport chains a new version of an existing report. Only the author
// may update; the previous certificate is kept unless a new one is uploaded.
func (h *Handlers) UpdateReport(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	reportID := c.Param("id")
	existing, err := h.db.Reports.Get(reportID)
	if errors.Is(err, db.ErrReportNotFound) {
		return apiErr(c, http.StatusNotFound, "Report not found")
	}
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to load report")
	}
	if existing.Author != p.Username {
		return apiErr(c, http.StatusForbidden, "You can only update your own reports")
	}
	return h.saveReport(c, p, reportID, &existing)
}

func (h *Handlers) saveReport(c echo.Context, p models.Principal, reportID string, existing *models.AnnualReport) error {
	op, action, verb, failPrefix, status := "submit", models.ActionSubmitReport, "submitted", "Annual report validation failed: ", http.StatusCreated
	if existing != nil {
		op, action, verb, failPrefix, status = "update", models.ActionUpdateReport, "updated", "Annual report update failed: ", http.StatusOK
	}
	reject := func(msg string) error {
		h.metrics.ObserveSubmission(op, "rejected")
		return apiErr(c, http.StatusBadRequest, msg)
	}

	form := readReportForm(c)
	if form.ReportData == "" || form.Category == "" || form.Target == "" || form.Department == "" {
		return reject("All fields are required except certificate")
	}
	from, to, err := contract.ResolveDates(form.EventDate, form.FromDate, form.ToDate)
	if err != nil {
		return reject(err.Error())
	}

	cert, err := h.readCertificate(c, reportID)
	var violation contract.Violation
	switch {
	case errors.As(err, &violation):
		return reject(err.Error())
	case err != nil:
		h.log.Error("certificate upload", zap.String("report_id", reportID), zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to process certificate")
	}

	sub := contract.Submission{
		ReportData: form.ReportData,
		Category:   form.Category,
		ReportType: form.ReportType,
		FromDate:   from,
		ToDate:     to,
		Department: form.Department,
		Author:     p.Username,
	}
	if err := contract.ValidateAnnualReport(sub); err != nil {
		return reject(failPrefix + err.Error())
	}
	if sub.ReportType != "" {
		if err := contract.ValidateSummary(sub); err != nil {
			return reject(failPrefix + err.Error())
		}
	} else {
		sub.ReportType = contract.DefaultReportType
	}

	block, err := h.chain.AppendReport(ledger.Report{
		ReportID:   reportID,
		ReportData: form.ReportData,
		Category:   form.Category,
		FromDate:   from,
		ToDate:     to,
		Department: form.Department,
		Author:     p.Username,
		Target:     form.Target,
	})
	var serr *ledger.SerializationError
	if errors.As(err, &serr) {
		return reject("Report contains invalid text")
	}
	if err != nil {
		h.log.Error("append report", zap.String("report_id", reportID), zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "failed to append report")
	}

	entry := models.AnnualReport{
		Data:           form.ReportData,
		Category:       form.Category,
		ReportType:     sub.ReportType,
		FromDate:       from,
		ToDate:         to,
		Department:     form.Department,
		Author:         p.Username,
		Target:         form.Target,
		TargetUsername: form.TargetUsername,
		Timestamp:      block.Timestamp,
		Hash:           block.Hash,
	}
	switch {
	case cert != nil:
		entry.Certificate = &cert.Encoded
		entry.CertificateFilename = &cert.Filename
		entry.CertificateSHA256 = cert.SHA256
		entry.CertificateSealed = cert.Sealed
	case existing != nil:
		entry.Certificate = existing.Certificate
		entry.CertificateFilename = existing.CertificateFilename
		entry.CertificateSHA256 = existing.CertificateSHA256
		entry.CertificateSealed = existing.CertificateSealed
	}

	// The block is already chained; a registry failure leaves the chain
	// ahead of the registry until the next successful write.
	if err := h.db.Reports.Put(reportID, entry); err != nil {
		h.log.Error("save report registry",
			zap.String("report_id", reportID),
			zap.Int("block_index", block.Index),
			zap.Error(err),
		)
		return apiErr(c, http.StatusInternalServerError, "failed to save report")
	}

	h.metrics.ObserveSubmission(op, "ok")
	h.metrics.SetChainLength(h.chain.Len())
	h.hub.Publish(BlockEvent{Type: "block_appended", Block: block})
	h.audit(p.Username, action, fmt.Sprintf("Annual report %s %s (%s) for %s", reportID, verb, form.Category, form.Target))
	h.requestRebuild(c.Request().Context(), "report_"+op, p.Username)

	return c.JSON(status, ReportResponse{ReportID: reportID, Block: block})
}

// DownloadCertificate returns the decoded certificate of a report after
// checking it against the digest recorded at upload.
func (h *Handlers) DownloadCertificate(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	reportID := c.Param("id")
	rep, err := h.db.Reports.Get(reportID)
	if errors.Is(err, db.ErrReportNotFound) {
		return apiErr(c, http.StatusNotFound, "Report not found")
	}
	if err != nil {
		return apiErr(c, http.StatusInternalServerError, "failed to load report")
	}
	if !rep.HasCertificate() {
		return apiErr(c, http.StatusNotFound, "No certificate available")
	}

	var data []byte
	if rep.CertificateSealed {
		if h.kms == nil {
			h.log.Error("sealed certificate without kms key", zap.String("report_id", reportID))
			return apiErr(c, http.StatusInternalServerError, "certificate cannot be decrypted")
		}
		data, err = h.kms.Open(*rep.Certificate, []byte(reportID))
	} else {
		data, err = base64.StdEncoding.DecodeString(*rep.Certificate)
	}
	if err != nil {
		h.log.Error("decode certificate", zap.String("report_id", reportID), zap.Error(err))
		return apiErr(c, http.StatusInternalServerError, "certificate cannot be decoded")
	}
	if rep.CertificateSHA256 != "" {
		if err := worm.VerifyObject(data, rep.CertificateSHA256); err != nil {
			h.log.Error("certificate integrity check failed", zap.String("report_id", reportID), zap.Error(err))
			return apiErr(c, http.StatusInternalServerError, "certificate integrity check failed")
		}
	}

	filename := defaultCertificateName
	if rep.CertificateFilename != nil && *rep.CertificateFilename != "" {
		filename = *rep.CertificateFilename
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	h.audit(p.Username, models.ActionDownloadCertificate, "Certificate for report "+reportID+" downloaded")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	if rep.CertificateSHA256 != "" {
		c.Response().Header().Set("X-SHA256", rep.CertificateSHA256)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

type StudentRecordRequest struct {
	Data string `json:"data" form:"data"`
}

// AddStudentRecord stores an unchained student record.
func (h *Handlers) AddStudentRecord(c echo.Context) error {
	p, err := mustPrincipal(c)
	if err != nil {
		return err
	}
	var req StudentRecordRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Data == "" {
		return apiErr(c, http.StatusBadRequest, "Record data is required")
	}
	rec := h.chain.AppendStudentRecord(req.Data)
	h.audit(p.Username, models.ActionAddStudentRecord, "Student record added")
	return c.JSON(http.StatusCreated, rec)
}
