package upload

import (
	"context"
	"fmt"
	"time"
)

type Upload struct {
	ID        int64
	CreatedBy *string
	CreatedAt time.Time
}

// File is one reconciliation run over an uploaded CSV.
type File struct {
	ID            int64
	UploadID      int64
	Path          string
	ReportingYear int
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key partitions the file's background work.
func (f *File) Key() string {
	return FileKey(f.ID)
}

func FileKey(id int64) string {
	return fmt.Sprintf("file:%d", id)
}

// LockName is the advisory lock serializing work on the file.
func LockName(id int64) string {
	return fmt.Sprintf("payroll:file:%d", id)
}

type CreateParams struct {
	CreatedBy     *string
	Path          string
	ReportingYear int
}

type Repository interface {
	// Create inserts an upload and its file in status uploaded.
	Create(ctx context.Context, params CreateParams) (*File, error)
	GetFile(ctx context.Context, id int64) (*File, error)
	// LockFile reads the file FOR UPDATE.
	LockFile(ctx context.Context, id int64) (*File, error)
	Exists(ctx context.Context, id int64) (bool, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	ListFiles(ctx context.Context) ([]*File, error)
	// Delete removes the file and its upload; canonical rows of that vintage cascade.
	Delete(ctx context.Context, id int64) (bool, error)
}
