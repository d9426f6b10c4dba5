package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/payconfig"
	"clinic/internal/domain/payroll"
	"clinic/internal/platform/metrics"
)

type fixture struct {
	svc   *Service
	runs  *stubRuns
	dir   *stubDirectory
	banks *stubBanks
	audit *recordingAudit
}

func newFixture() *fixture {
	f := &fixture{
		runs:  &stubRuns{detail: postedDetail()},
		dir:   &stubDirectory{employees: directory()},
		banks: &stubBanks{cfg: achConfig(), infos: banks()},
		audit: &recordingAudit{},
	}
	f.svc = NewService(Deps{
		Runs:      f.runs,
		Directory: f.dir,
		Banks:     f.banks,
		Audit:     f.audit,
		Metrics:   metrics.New(),
	})
	f.svc.Now = func() time.Time { return exportedAt }
	return f
}

func (f *fixture) runID() string { return f.runs.detail.Run.ID }

func TestExportsAuditEveryCallOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CSV(ctx, clerk, f.runID())
	require.NoError(t, err)
	_, err = f.svc.ACH(ctx, clerk, f.runID(), ModeTest)
	require.NoError(t, err)
	_, err = f.svc.PDF(ctx, clerk, f.runID(), "E-1002")
	require.NoError(t, err)

	entries := f.audit.all()
	require.Len(t, entries, 3)
	assert.Equal(t, audit.ActionExportCSV, entries[0].Action)
	assert.Equal(t, audit.ActionExportACH, entries[1].Action)
	assert.Equal(t, audit.ActionExportPDF, entries[2].Action)
	for _, e := range entries {
		assert.True(t, e.Success)
		assert.Equal(t, clerk, e.Actor)
		assert.Equal(t, audit.SubjectPayrollRun, e.SubjectType)
		assert.Equal(t, f.runID(), e.SubjectID)
	}
	assert.Equal(t, 3, entries[0].Meta["records"])
	assert.Equal(t, []string{"E-1003"}, entries[1].Meta["skipped"])
	assert.Equal(t, true, entries[1].Meta["partial"])
	assert.Equal(t, "E-1002", entries[2].Meta["employeeId"])
}

func TestExportGatingIsAuditedAsFailure(t *testing.T) {
	for _, status := range []string{payroll.RunStatusDraft, payroll.RunStatusVoided} {
		status := status
		t.Run(status, func(t *testing.T) {
			f := newFixture()
			f.runs.detail.Run.Status = status
			ctx := context.Background()

			_, csvErr := f.svc.CSV(ctx, clerk, f.runID())
			_, achErr := f.svc.ACH(ctx, clerk, f.runID(), "")
			_, pdfErr := f.svc.PDF(ctx, clerk, f.runID(), "")
			for _, err := range []error{csvErr, achErr, pdfErr} {
				assert.ErrorIs(t, err, payroll.ErrInvalidState)
			}

			entries := f.audit.all()
			require.Len(t, entries, 3)
			for _, e := range entries {
				assert.False(t, e.Success)
				assert.NotEmpty(t, e.Meta["error"])
			}
		})
	}
}

func TestACHDefaultModeAndDependencies(t *testing.T) {
	f := newFixture()
	f.svc.DefaultACHMode = ModeTest
	ctx := context.Background()

	file, err := f.svc.ACH(ctx, clerk, f.runID(), " ")
	require.NoError(t, err)
	assert.Equal(t, ModeTest, file.Mode)

	_, err = f.svc.ACH(ctx, clerk, f.runID(), "wire")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.ErrorIs(t, err, payroll.ErrValidation)

	f.banks.cfgErr = payconfig.ErrNoACHConfig
	_, err = f.svc.ACH(ctx, clerk, f.runID(), ModeLive)
	assert.ErrorIs(t, err, ErrACHUnavailable)

	f.banks.cfgErr = nil
	f.banks.err = errors.New("vault sealed")
	_, err = f.svc.ACH(ctx, clerk, f.runID(), ModeLive)
	assert.ErrorIs(t, err, ErrBankLookupFailed)
	assert.ErrorIs(t, err, payroll.ErrDependency)

	entries := f.audit.all()
	require.Len(t, entries, 4)
	assert.Equal(t, ModeTest, entries[0].Meta["mode"])
	assert.Equal(t, "wire", entries[1].Meta["mode"])
	assert.False(t, entries[3].Success)
}

func TestCSVDirectoryFailure(t *testing.T) {
	f := newFixture()
	f.dir.err = errors.New("timeout")
	_, err := f.svc.CSV(context.Background(), clerk, f.runID())
	assert.ErrorIs(t, err, ErrDirectoryFailed)
	assert.ErrorIs(t, err, payroll.ErrDependency)
}

func TestUnknownRun(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CSV(context.Background(), clerk, "missing")
	assert.ErrorIs(t, err, payroll.ErrNotFound)
	entries := f.audit.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "missing", entries[0].SubjectID)
}

func TestPDFSingleAndArchive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	single, err := f.svc.PDF(ctx, clerk, f.runID(), "E-1001")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", single.ContentType)
	assert.Equal(t, 1, single.Documents)
	assert.True(t, bytes.HasPrefix(single.Content, []byte("%PDF-")))

	_, err = f.svc.PDF(ctx, clerk, f.runID(), "E-9999")
	assert.ErrorIs(t, err, ErrEmployeeNotInRun)

	bundle, err := f.svc.PDF(ctx, clerk, f.runID(), "")
	require.NoError(t, err)
	assert.Equal(t, "application/zip", bundle.ContentType)
	assert.Equal(t, 3, bundle.Documents)

	zr, err := zip.NewReader(bytes.NewReader(bundle.Content), int64(len(bundle.Content)))
	require.NoError(t, err)
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	assert.Equal(t, []string{"paystub-E-1001.pdf", "paystub-E-1002.pdf", "paystub-E-1003.pdf"}, names)
}
