package app

import (
	"context"
	"fmt"

	"queuemigrate/internal/storage"

	"go.uber.org/zap"
)

// ObjectLister enumerates the identifiers under a bucket and prefix
type ObjectLister struct {
	client storage.Source
	bucket string
	prefix string
	logger *zap.Logger
}

// NewObjectLister creates a lister for one scope
func NewObjectLister(client storage.Source, bucket, prefix string, logger *zap.Logger) *ObjectLister {
	return &ObjectLister{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Each calls fn for every object key in scope and returns how many were
// seen. Every call starts a fresh listing. A listing error or an error from
// fn aborts the enumeration; whatever fn received so far must be discarded.
func (l *ObjectLister) Each(ctx context.Context, fn func(id string) error) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objCh, errCh := l.client.ListObjects(ctx, l.bucket, l.prefix)

	var total int64
	for {
		select {
		case obj, ok := <-objCh:
			if !ok {
				// The producer may have failed right before closing
				if errCh != nil {
					if err := <-errCh; err != nil {
						return total, fmt.Errorf("error listing objects: %w", err)
					}
				}
				l.logger.Info("Finished listing objects",
					zap.String("bucket", l.bucket),
					zap.String("prefix", l.prefix),
					zap.Int64("total_objects", total),
				)
				return total, nil
			}

			if err := fn(obj.Key); err != nil {
				return total, err
			}
			total++

			if total%10000 == 0 {
				l.logger.Info("Listing in progress", zap.Int64("listed", total))
			}

		case err, ok := <-errCh:
			if err != nil {
				return total, fmt.Errorf("error listing objects: %w", err)
			}
			if !ok {
				errCh = nil
			}

		case <-ctx.Done():
			return total, ctx.Err()
		}
	}
}
