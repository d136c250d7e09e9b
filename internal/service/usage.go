package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/record"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/entitlement"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/blobstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statConcurrency = 8

// UsageCalculator turns a patient's live records into entitlement usage by
// asking the blob store which files still exist and how large they are.
type UsageCalculator struct {
	records record.Repository
	blobs   blobstore.Store
	log     *zap.Logger
}

func NewUsageCalculator(records record.Repository, blobs blobstore.Store, log *zap.Logger) *UsageCalculator {
	return &UsageCalculator{records: records, blobs: blobs, log: log}
}

func (c *UsageCalculator) ForPatient(ctx context.Context, patientID uuid.UUID) (entitlement.Usage, error) {
	recs, err := c.records.ListLiveByPatient(ctx, patientID)
	if err != nil {
		return entitlement.Usage{}, fmt.Errorf("loading live records: %w", err)
	}
	return c.Usage(ctx, recs)
}

// Stat reports one FileStat per record. Blob errors count the file as missing.
func (c *UsageCalculator) Stat(ctx context.Context, recs []*record.Record) ([]entitlement.FileStat, error) {
	stats := make([]entitlement.FileStat, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statConcurrency)
	for i, rec := range recs {
		g.Go(func() error {
			size, err := c.blobs.Size(gctx, rec.FileKey)
			switch {
			case err == nil:
				stats[i] = entitlement.FileStat{SizeBytes: size, Exists: true}
			case errors.Is(err, blobstore.ErrBlobNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				c.log.Warn("stat record file",
					zap.String("record_id", rec.ID.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Usage computes usage for an already loaded set of live records.
func (c *UsageCalculator) Usage(ctx context.Context, recs []*record.Record) (entitlement.Usage, error) {
	stats, err := c.Stat(ctx, recs)
	if err != nil {
		return entitlement.Usage{}, err
	}
	return entitlement.ComputeUsage(stats), nil
}
