package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
)

const validHeader = "Responding Agency,Employer,Department,First Name,Last Name,Title,Salary,Extra Pay,Date Started,Data Year\n"

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestUploadService_Validate(t *testing.T) {
	t.Parallel()

	s := NewUploadService(nil, nil, nil)
	s.clock = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	valid := writeFile(t, "ok.csv", []byte(validHeader+"A,B,,Jane,Doe,Clerk,1,,,2020\n"))
	missing := writeFile(t, "missing.csv", []byte("responding_agency,employer\nA,B\n"))
	png := writeFile(t, "logo.csv", append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...))

	cases := []struct {
		name    string
		in      UploadInput
		wantErr []error
	}{
		{name: "valid", in: UploadInput{Path: valid, ReportingYear: 2020}},
		{name: "current year", in: UploadInput{Path: valid, ReportingYear: 2026}},
		{name: "no path", in: UploadInput{ReportingYear: 2020}, wantErr: []error{ErrValidation}},
		{name: "absurd year", in: UploadInput{Path: valid, ReportingYear: 1890}, wantErr: []error{ErrValidation}},
		{name: "future year", in: UploadInput{Path: valid, ReportingYear: 2027}, wantErr: []error{ErrValidation}},
		{name: "no such file", in: UploadInput{Path: filepath.Join(t.TempDir(), "nope.csv"), ReportingYear: 2020}, wantErr: []error{ErrValidation}},
		{name: "missing columns", in: UploadInput{Path: missing, ReportingYear: 2020}, wantErr: []error{ErrValidation, staging.ErrMissingColumns}},
		{name: "binary", in: UploadInput{Path: png, ReportingYear: 2020}, wantErr: []error{ErrValidation, staging.ErrNotText}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := s.Validate(tc.in)
			if len(tc.wantErr) == 0 {
				require.NoError(t, err)
				require.Empty(t, meta.Missing)
				return
			}
			require.Error(t, err)
			for _, want := range tc.wantErr {
				require.ErrorIs(t, err, want)
			}
			var se *ServiceError
			require.ErrorAs(t, err, &se)
			require.Equal(t, "IMPORT_VALIDATION", se.Code)
		})
	}
}
