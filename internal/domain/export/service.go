package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/employees"
	"clinic/internal/domain/payconfig"
	"clinic/internal/domain/payroll"
	"clinic/internal/platform/metrics"
)

type RunReader interface {
	GetRun(ctx context.Context, id string) (payroll.RunDetail, error)
}

type Directory interface {
	GetEmployees(ctx context.Context, ids []string) (map[string]employees.Employee, error)
}

type BankSource interface {
	ACHConfig(ctx context.Context) (payconfig.ACHConfig, error)
	BankInfo(ctx context.Context, employeeIDs []string) (map[string]payconfig.BankInfo, error)
}

type AuditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Deps struct {
	Runs           RunReader
	Directory      Directory
	Banks          BankSource
	Audit          AuditLog
	Metrics        *metrics.Collector
	DefaultACHMode string
}

// Service generates exports from a single snapshot per call and audits every attempt exactly once.
type Service struct {
	runs      RunReader
	directory Directory
	banks     BankSource
	audit     AuditLog
	metrics   *metrics.Collector

	DefaultACHMode string
	Now            func() time.Time
}

func NewService(deps Deps) *Service {
	mode := deps.DefaultACHMode
	if mode == "" {
		mode = ModeLive
	}
	return &Service{
		runs:           deps.Runs,
		directory:      deps.Directory,
		banks:          deps.Banks,
		audit:          deps.Audit,
		metrics:        deps.Metrics,
		DefaultACHMode: mode,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CSV(ctx context.Context, actor audit.Actor, runID string) (Document, error) {
	meta := map[string]any{"format": FormatCSV}
	doc, err := s.csv(ctx, runID, meta)
	s.finish(ctx, audit.ActionExportCSV, FormatCSV, actor, runID, meta, err)
	return doc, err
}

func (s *Service) csv(ctx context.Context, runID string, meta map[string]any) (Document, error) {
	snap, err := s.snapshot(ctx, runID)
	if err != nil {
		return Document{}, err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, snap); err != nil {
		return Document{}, err
	}
	meta["records"] = len(snap.Paystubs)
	return Document{
		Content:     buf.Bytes(),
		Filename:    "paystubs-" + runID + ".csv",
		ContentType: "text/csv",
		Documents:   len(snap.Paystubs),
	}, nil
}

// ACH builds the direct deposit file. An empty mode falls back to DefaultACHMode.
func (s *Service) ACH(ctx context.Context, actor audit.Actor, runID, mode string) (ACHFile, error) {
	if strings.TrimSpace(mode) == "" {
		mode = s.DefaultACHMode
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	meta := map[string]any{"format": FormatACH, "mode": mode}
	file, err := s.ach(ctx, runID, mode)
	if err == nil {
		meta["entries"] = file.EntryCount
		meta["totalCredit"] = file.TotalCredit.StringFixed(2)
		meta["skipped"] = file.Skipped
		meta["partial"] = file.Partial()
	}
	s.finish(ctx, audit.ActionExportACH, FormatACH, actor, runID, meta, err)
	return file, err
}

func (s *Service) ach(ctx context.Context, runID, mode string) (ACHFile, error) {
	if mode != ModeLive && mode != ModeTest {
		return ACHFile{}, ErrUnknownMode
	}
	snap, err := s.snapshot(ctx, runID)
	if err != nil {
		return ACHFile{}, err
	}
	cfg, err := s.banks.ACHConfig(ctx)
	if err != nil {
		return ACHFile{}, fmt.Errorf("%w: %v", ErrACHUnavailable, err)
	}
	ids := make([]string, 0, len(snap.Paystubs))
	for _, p := range snap.Paystubs {
		ids = append(ids, p.EmployeeID)
	}
	banks, err := s.banks.BankInfo(ctx, ids)
	if err != nil {
		return ACHFile{}, fmt.Errorf("%w: %v", ErrBankLookupFailed, err)
	}
	return BuildACH(cfg, snap, banks, ACHOptions{Mode: mode, Now: s.Now()})
}

// PDF returns one paystub when employeeID is set, otherwise a zip holding one PDF per employee.
func (s *Service) PDF(ctx context.Context, actor audit.Actor, runID, employeeID string) (Document, error) {
	employeeID = strings.TrimSpace(employeeID)
	meta := map[string]any{"format": FormatPDF}
	if employeeID != "" {
		meta["employeeId"] = employeeID
	}
	doc, err := s.pdf(ctx, runID, employeeID)
	if err == nil {
		meta["documents"] = doc.Documents
	}
	s.finish(ctx, audit.ActionExportPDF, FormatPDF, actor, runID, meta, err)
	return doc, err
}

func (s *Service) pdf(ctx context.Context, runID, employeeID string) (Document, error) {
	snap, err := s.snapshot(ctx, runID)
	if err != nil {
		return Document{}, err
	}
	createdAt := documentTime(snap.Run)

	if employeeID != "" {
		for _, p := range snap.Paystubs {
			if p.EmployeeID != employeeID {
				continue
			}
			content, err := paystubPDF(p, createdAt)
			if err != nil {
				return Document{}, err
			}
			return Document{
				Content:     content,
				Filename:    fmt.Sprintf("paystub-%s-%s.pdf", runID, employeeID),
				ContentType: "application/pdf",
				Documents:   1,
			}, nil
		}
		return Document{}, ErrEmployeeNotInRun
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range snap.Paystubs {
		content, err := paystubPDF(p, createdAt)
		if err != nil {
			return Document{}, err
		}
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     "paystub-" + p.EmployeeID + ".pdf",
			Method:   zip.Deflate,
			Modified: createdAt,
		})
		if err != nil {
			return Document{}, err
		}
		if _, err := f.Write(content); err != nil {
			return Document{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return Document{}, err
	}
	return Document{
		Content:     buf.Bytes(),
		Filename:    "paystubs-" + runID + ".zip",
		ContentType: "application/zip",
		Documents:   len(snap.Paystubs),
	}, nil
}

func (s *Service) snapshot(ctx context.Context, runID string) (Snapshot, error) {
	detail, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := detail.Run.Exportable(); err != nil {
		return Snapshot{}, err
	}
	directory := map[string]employees.Employee{}
	if s.directory != nil && len(detail.Records) > 0 {
		directory, err = s.directory.GetEmployees(ctx, employeeIDs(detail))
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrDirectoryFailed, err)
		}
	}
	return BuildSnapshot(detail, directory)
}

func (s *Service) finish(ctx context.Context, action, format string, actor audit.Actor, runID string, meta map[string]any, err error) {
	if err != nil {
		meta["error"] = err.Error()
	}
	s.metrics.RecordExport(format, err == nil)
	if s.audit == nil {
		return
	}
	if auditErr := s.audit.Record(ctx, audit.Entry{
		Action:      action,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   runID,
		Actor:       actor,
		Meta:        meta,
		Success:     err == nil,
	}); auditErr != nil {
		slog.Warn("audit record failed", "action", action, "subjectId", runID, "err", auditErr)
	}
}

func documentTime(run payroll.Run) time.Time {
	switch {
	case run.TaxComputedAt != nil:
		return run.TaxComputedAt.UTC()
	case run.PostedAt != nil:
		return run.PostedAt.UTC()
	}
	return run.CreatedAt.UTC()
}
