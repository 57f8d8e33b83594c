// Package grant implements the external locations a user can grant access to:
// a plain directory, an S3 bucket prefix, or an Azure blob container.
//
// A grant record is the persisted consent. It holds everything needed to reopen
// the location and is referred to elsewhere only by its opaque token.
package grant

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/util/paths"
)

// Options carries shared dependencies for opening a grant.
type Options struct {
	// HTTPClient is the proxy-aware client used by object-store providers.
	HTTPClient *nethttp.Client
	Logger     *logging.Logger
}

func newRecord(provider models.GrantProvider, label string) models.GrantRecord {
	return models.GrantRecord{
		Token:     uuid.NewString(),
		Provider:  provider,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
}

// NewDirectoryRecord builds a grant record for a local directory.
func NewDirectoryRecord(dir, label string) (models.GrantRecord, error) {
	abs, err := paths.ResolveDir(dir)
	if err != nil {
		return models.GrantRecord{}, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if label == "" {
		label = abs
	}
	rec := newRecord(models.GrantDirectory, label)
	rec.Directory = &models.DirectoryGrant{Path: abs}
	return rec, nil
}

// NewS3Record builds a grant record for an S3 bucket prefix.
func NewS3Record(cfg models.S3Grant, label string) (models.GrantRecord, error) {
	if cfg.Bucket == "" {
		return models.GrantRecord{}, fmt.Errorf("s3 grant requires a bucket")
	}
	if label == "" {
		label = "s3://" + cfg.Bucket
		if cfg.Prefix != "" {
			label += "/" + cfg.Prefix
		}
	}
	rec := newRecord(models.GrantS3, label)
	rec.S3 = &cfg
	return rec, nil
}

// NewAzureRecord builds a grant record for an Azure container SAS URL.
func NewAzureRecord(cfg models.AzureGrant, label string) (models.GrantRecord, error) {
	name, err := containerName(cfg.ContainerSASURL)
	if err != nil {
		return models.GrantRecord{}, err
	}
	if label == "" {
		label = "azure://" + name
		if cfg.Prefix != "" {
			label += "/" + cfg.Prefix
		}
	}
	rec := newRecord(models.GrantAzure, label)
	rec.Azure = &cfg
	return rec, nil
}

// Open turns a persisted record into a live grant.
func Open(ctx context.Context, rec models.GrantRecord, opts Options) (storage.Grant, error) {
	logger := logging.OrNop(opts.Logger)
	logger.Debug().Str("provider", string(rec.Provider)).Str("label", rec.Label).Msg("Opening grant")

	switch rec.Provider {
	case models.GrantDirectory:
		if rec.Directory == nil {
			return nil, fmt.Errorf("grant %s: missing directory settings", rec.Token)
		}
		return NewDirectoryGrant(*rec.Directory, rec.Label)
	case models.GrantS3:
		if rec.S3 == nil {
			return nil, fmt.Errorf("grant %s: missing s3 settings", rec.Token)
		}
		return NewS3Grant(ctx, *rec.S3, rec.Label, opts.HTTPClient)
	case models.GrantAzure:
		if rec.Azure == nil {
			return nil, fmt.Errorf("grant %s: missing azure settings", rec.Token)
		}
		return NewAzureGrant(*rec.Azure, rec.Label, opts.HTTPClient)
	default:
		return nil, fmt.Errorf("unknown grant provider: %q", rec.Provider)
	}
}

// Probe checks that the grant is usable by listing it. A refused listing means
// the consent is missing or has been revoked at the provider.
func Probe(ctx context.Context, g storage.Grant) error {
	_, err := g.List(ctx)
	return err
}
