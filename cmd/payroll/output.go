package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
)

func writeJSONLine(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

type fileView struct {
	ID            int64     `json:"id"`
	UploadID      int64     `json:"upload_id"`
	Path          string    `json:"path"`
	ReportingYear int       `json:"reporting_year"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newFileView(f *upload.File) fileView {
	return fileView{
		ID:            f.ID,
		UploadID:      f.UploadID,
		Path:          f.Path,
		ReportingYear: f.ReportingYear,
		Status:        string(f.Status),
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

type statusView struct {
	File         fileView         `json:"file"`
	PendingTasks int64            `json:"pending_tasks"`
	FailedTasks  int64            `json:"failed_tasks"`
	LastError    string           `json:"last_error,omitempty"`
	RawRows      int64            `json:"raw_rows"`
	Persons      int64            `json:"persons"`
	Jobs         int64            `json:"jobs"`
	Unattributed int64            `json:"unattributed_rows"`
	Remaining    map[string]int64 `json:"remaining"`
}

func newStatusView(st *services.FileStatus) statusView {
	v := statusView{
		File:         newFileView(st.File),
		PendingTasks: st.Tasks.Pending,
		FailedTasks:  st.Tasks.Failed,
		LastError:    st.Tasks.LastError,
		RawRows:      st.Counts.Raw,
		Persons:      st.Counts.Persons,
		Jobs:         st.Counts.Jobs,
		Unattributed: st.Counts.Unattributed,
		Remaining:    make(map[string]int64, len(st.Remaining)),
	}
	for k, n := range st.Remaining {
		v.Remaining[string(k)] = n
	}
	return v
}
