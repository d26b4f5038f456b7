package backend

import (
	"context"
	"errors"
	"time"

	"github.com/trackside/f1radio-cache/telemetry"
)

// Instrumented wraps a Backend and records operation metrics.
type Instrumented struct {
	backend Backend
	name    string
}

// NewInstrumented creates an instrumented wrapper around a backend.
func NewInstrumented(backend Backend, name string) *Instrumented {
	return &Instrumented{backend: backend, name: name}
}

func (i *Instrumented) Write(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.backend.Write(ctx, key, data)
	telemetry.RecordBackendOp(ctx, i.name, "write", outcomeFromError(err), time.Since(start), int64(len(data)))
	return err
}

func (i *Instrumented) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.backend.Read(ctx, key)
	telemetry.RecordBackendOp(ctx, i.name, "read", outcomeFromError(err), time.Since(start), int64(len(data)))
	return data, err
}

func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.backend.Delete(ctx, key)
	telemetry.RecordBackendOp(ctx, i.name, "delete", outcomeFromError(err), time.Since(start), 0)
	return err
}

func (i *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.backend.Exists(ctx, key)
	telemetry.RecordBackendOp(ctx, i.name, "exists", outcomeFromError(err), time.Since(start), 0)
	return ok, err
}

func (i *Instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.backend.List(ctx, prefix)
	telemetry.RecordBackendOp(ctx, i.name, "list", outcomeFromError(err), time.Since(start), 0)
	return keys, err
}

func (i *Instrumented) Stat(ctx context.Context, key string) (Info, error) {
	start := time.Now()
	info, err := i.backend.Stat(ctx, key)
	telemetry.RecordBackendOp(ctx, i.name, "stat", outcomeFromError(err), time.Since(start), 0)
	return info, err
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
