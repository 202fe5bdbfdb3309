package bootup

import (
	"context"
	"log/slog"

	"github.com/kalambet/sysbind/internal/sysfs"
)

// Source enumerates entries to replay.
type Source interface {
	All(ctx context.Context, category string) ([]Entry, error)
}

// RestoreReport summarises one replay.
type RestoreReport struct {
	Restored int              `json:"restored"`
	Skipped  int              `json:"skipped"`
	Failed   []RestoreFailure `json:"failed,omitempty"`
}

// RestoreFailure names an entry whose write failed.
type RestoreFailure struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Error    string `json:"error"`
}

// Restorer replays registered entries at process start.
type Restorer struct {
	source Source
	writer sysfs.Writer
	logger *slog.Logger
}

// NewRestorer creates a Restorer writing through w.
func NewRestorer(source Source, w sysfs.Writer) *Restorer {
	return &Restorer{source: source, writer: w, logger: slog.Default()}
}

// Run writes every enabled entry in registration order. A failed write is
// logged and recorded in the report; the remaining entries are still
// written. Only a failure to enumerate the registry is returned as an error.
func (r *Restorer) Run(ctx context.Context, category string) (RestoreReport, error) {
	var report RestoreReport

	entries, err := r.source.All(ctx, category)
	if err != nil {
		return report, err
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !e.Enabled {
			report.Skipped++
			continue
		}
		if err := r.writer.Write(ctx, e.Path, e.Value); err != nil {
			r.logger.Warn("restore write failed", "category", e.Category, "key", e.Key, "path", e.Path, "error", err)
			report.Failed = append(report.Failed, RestoreFailure{
				Category: e.Category,
				Key:      e.Key,
				Path:     e.Path,
				Error:    err.Error(),
			})
			continue
		}
		r.logger.Debug("restored", "category", e.Category, "key", e.Key, "path", e.Path, "value", e.Value)
		report.Restored++
	}

	r.logger.Info("bootup restore complete",
		"category", category,
		"restored", report.Restored,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
	)
	return report, nil
}
