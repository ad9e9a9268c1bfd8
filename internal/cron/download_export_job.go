package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/bigquery"
	"github.com/angelmondragon/captures-backend/pkg/db/models"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	"go.uber.org/multierr"
)

const (
	downloadExportJobName     = "download_export"
	defaultDownloadExportSize = 500
	maxDownloadExportBatches  = 20
)

type DownloadExportJobParams struct {
	Logger    *logger.Logger
	Source    downloadExportSource
	Sink      downloadSink
	BatchSize int
}

type downloadExportSource interface {
	ListUnexported(ctx context.Context, limit int) ([]models.DownloadLog, error)
	MarkExported(ctx context.Context, ids []int64, at time.Time) (int64, error)
}

type downloadSink interface {
	InsertDownloads(ctx context.Context, rows []bigquery.DownloadRow) error
}

// NewDownloadExportJob streams unexported download log rows to the warehouse
// and stamps them exported. Rows the warehouse rejects stay unexported and
// are retried next cycle.
func NewDownloadExportJob(params DownloadExportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Source == nil {
		return nil, fmt.Errorf("download log source required")
	}
	if params.Sink == nil {
		return nil, fmt.Errorf("download sink required")
	}
	size := params.BatchSize
	if size <= 0 {
		size = defaultDownloadExportSize
	}
	return &downloadExportJob{
		logg:   params.Logger,
		source: params.Source,
		sink:   params.Sink,
		size:   size,
		now:    time.Now,
	}, nil
}

type downloadExportJob struct {
	logg   *logger.Logger
	source downloadExportSource
	sink   downloadSink
	size   int
	now    func() time.Time
}

func (j *downloadExportJob) Name() string { return downloadExportJobName }

func (j *downloadExportJob) Run(ctx context.Context) error {
	var (
		exported int64
		rejected int
	)
	for batch := 0; batch < maxDownloadExportBatches; batch++ {
		logs, err := j.source.ListUnexported(ctx, j.size)
		if err != nil {
			return fmt.Errorf("list unexported downloads: %w", err)
		}
		if len(logs) == 0 {
			break
		}

		n, failed, err := j.exportBatch(ctx, logs)
		exported += n
		rejected += failed
		if err != nil {
			j.logSummary(ctx, exported, rejected)
			return err
		}
		// a batch with rejected rows would be listed again; wait for the next cycle
		if failed > 0 || len(logs) < j.size {
			break
		}
	}
	j.logSummary(ctx, exported, rejected)
	return nil
}

func (j *downloadExportJob) exportBatch(ctx context.Context, logs []models.DownloadLog) (int64, int, error) {
	at := j.now().UTC()
	rows := make([]bigquery.DownloadRow, 0, len(logs))
	for _, entry := range logs {
		rows = append(rows, bigquery.DownloadRow{
			LogID:        entry.ID,
			CaptureID:    entry.CaptureID,
			UserID:       entry.UserID.String(),
			DownloadedAt: entry.CreatedAt,
			ExportedAt:   at,
		})
	}

	var rowErrs error
	insertErr := j.sink.InsertDownloads(ctx, rows)
	failed := map[int]error{}
	if insertErr != nil {
		perRow, ok := bigquery.FailedRows(insertErr)
		if !ok {
			return 0, 0, fmt.Errorf("insert downloads: %w", insertErr)
		}
		failed = perRow
		for idx, rowErr := range perRow {
			if idx < 0 || idx >= len(logs) {
				return 0, 0, fmt.Errorf("insert downloads: row index %d out of range: %w", idx, insertErr)
			}
			rowErrs = multierr.Append(rowErrs, fmt.Errorf("download log %d: %w", logs[idx].ID, rowErr))
		}
	}

	ids := make([]int64, 0, len(logs))
	for idx, entry := range logs {
		if _, bad := failed[idx]; bad {
			continue
		}
		ids = append(ids, entry.ID)
	}
	marked, err := j.source.MarkExported(ctx, ids, at)
	if err != nil {
		return 0, len(failed), multierr.Append(rowErrs, fmt.Errorf("mark exported: %w", err))
	}
	return marked, len(failed), rowErrs
}

func (j *downloadExportJob) logSummary(ctx context.Context, exported int64, rejected int) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"exported": exported,
		"rejected": rejected,
	})
	j.logg.Info(logCtx, "download export complete")
}
