package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// GCS deletes uploaded documents from Google Cloud Storage. Identifiers
// are bucket/object paths, so one store spans every bucket the service
// account can reach.
type GCS struct {
	client  *storage.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewGCS creates a GCS-backed file store using application default
// credentials.
func NewGCS(ctx context.Context, timeout time.Duration, log zerolog.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{
		client:  client,
		timeout: timeout,
		log:     log.With().Str("component", "filestore").Logger(),
	}, nil
}

// Delete removes the object named by a bucket/object identifier. An object
// that is already gone counts as deleted, so retried deletes stay safe.
func (g *GCS) Delete(ctx context.Context, fileID string) error {
	parts := strings.SplitN(fileID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid file identifier %q, want bucket/object", fileID)
	}

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.client.Bucket(parts[0]).Object(parts[1]).Delete(tctx)
	if err == nil {
		g.log.Debug().Str("file", fileID).Msg("object deleted")
		return nil
	}
	var apiErr *googleapi.Error
	if errors.Is(err, storage.ErrObjectNotExist) ||
		(errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound) {
		g.log.Debug().Str("file", fileID).Msg("object already gone")
		return nil
	}
	return fmt.Errorf("failed to delete object %s: %w", fileID, err)
}

// ResolveID implements FileStore
func (g *GCS) ResolveID(url string) string {
	return ExtractID(url)
}

// Close releases the underlying client
func (g *GCS) Close() error {
	return g.client.Close()
}
