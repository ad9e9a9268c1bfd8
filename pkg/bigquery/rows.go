package bigquery

import (
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
)

// DownloadRow is one exported download log entry. The log id doubles as the
// streaming insert id so a retried export does not duplicate rows.
type DownloadRow struct {
	LogID        int64
	CaptureID    int64
	UserID       string
	DownloadedAt time.Time
	ExportedAt   time.Time
}

// Save implements bigquery.ValueSaver.
func (r *DownloadRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"log_id":        r.LogID,
		"capture_id":    r.CaptureID,
		"user_id":       r.UserID,
		"downloaded_at": r.DownloadedAt.UTC(),
		"exported_at":   r.ExportedAt.UTC(),
	}, strconv.FormatInt(r.LogID, 10), nil
}

// DownloadsTableMetadata describes the downloads table: one row per
// download, partitioned by day and clustered by capture.
func DownloadsTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description: "Capture download log exported by the cron worker",
		Schema: bigquery.Schema{
			{Name: "log_id", Type: bigquery.IntegerFieldType, Required: true},
			{Name: "capture_id", Type: bigquery.IntegerFieldType, Required: true},
			{Name: "user_id", Type: bigquery.StringFieldType, Required: true},
			{Name: "downloaded_at", Type: bigquery.TimestampFieldType, Required: true},
			{Name: "exported_at", Type: bigquery.TimestampFieldType, Required: true},
		},
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "downloaded_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"capture_id"}},
	}
}

// FailedRows reports which rows of a streaming insert were rejected. ok is
// false when err is not a per-row failure, in which case the whole insert
// must be treated as failed.
func FailedRows(err error) (map[int]error, bool) {
	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		return nil, false
	}
	failed := make(map[int]error, len(multi))
	for _, rowErr := range multi {
		failed[rowErr.RowIndex] = rowErr.Errors
	}
	return failed, true
}
