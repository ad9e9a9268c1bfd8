// Package bigquery streams exported download logs into the analytics warehouse.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotInitialized = errors.New("bigquery client not initialized")

type Client struct {
	bq        *bigquery.Client
	downloads *bigquery.Table
}

// NewClient connects to BigQuery and makes sure the downloads table is usable.
// A missing table is created when CAPTURES_BIGQUERY_CREATE_TABLE is set and
// is an error otherwise.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.DownloadsTable)
	switch {
	case projectID == "":
		return nil, errors.New("gcp project id is required")
	case datasetID == "":
		return nil, errors.New("bigquery dataset is required")
	case tableID == "":
		return nil, errors.New("bigquery downloads table is required")
	}

	bq, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{bq: bq, downloads: bq.Dataset(datasetID).Table(tableID)}

	created, err := client.ensureDownloadsTable(ctx, cfg.CreateTable)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   tableID,
			"created": created,
		}), "bigquery downloads table ready")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) ensureDownloadsTable(ctx context.Context, create bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := c.downloads.Metadata(ctx)
	switch {
	case err == nil:
		return false, nil
	case !isNotFound(err):
		return false, fmt.Errorf("checking table %s: %w", c.tableName(), err)
	case !create:
		return false, fmt.Errorf("table %s does not exist", c.tableName())
	}

	if err := c.downloads.Create(ctx, DownloadsTableMetadata()); err != nil {
		return false, fmt.Errorf("creating table %s: %w", c.tableName(), err)
	}
	return true, nil
}

// Ping checks the downloads table is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.downloads == nil {
		return errNotInitialized
	}
	_, err := c.ensureDownloadsTable(ctx, false)
	return err
}

// InsertDownloads streams rows into the downloads table. Per-row rejections
// come back as bigquery.PutMultiError; see FailedRows.
func (c *Client) InsertDownloads(ctx context.Context, rows []DownloadRow) error {
	if len(rows) == 0 {
		return nil
	}
	if c == nil || c.downloads == nil {
		return errNotInitialized
	}
	savers := make([]*DownloadRow, len(rows))
	for i := range rows {
		savers[i] = &rows[i]
	}
	return c.downloads.Inserter().Put(ctx, savers)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func (c *Client) tableName() string {
	return c.downloads.DatasetID + "." + c.downloads.TableID
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
