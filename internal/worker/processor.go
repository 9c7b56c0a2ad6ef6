package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"queuemigrate/internal/storage"
)

const defaultContentType = "application/octet-stream"

// TaskProcessor moves one object from the source to the destination
type TaskProcessor struct {
	config    Config
	srcClient storage.Source
	dstClient storage.Destination
}

// Process copies the object named id and returns its size. The whole body
// is read before the put starts, so a failed read never leaves a partial
// object behind.
func (p *TaskProcessor) Process(ctx context.Context, id string) (int64, error) {
	data, info, err := p.fetch(ctx, id)
	if err != nil {
		return 0, err
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	size := int64(len(data))
	if err := p.dstClient.PutObject(ctx, p.config.TargetBucket, id, bytes.NewReader(data), size, storage.PutOptions{
		ContentType: contentType,
	}); err != nil {
		return 0, fmt.Errorf("failed to put destination object: %w", err)
	}

	return size, nil
}

func (p *TaskProcessor) fetch(ctx context.Context, id string) ([]byte, storage.ObjectInfo, error) {
	obj, err := p.srcClient.GetObject(ctx, p.config.SourceBucket, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("failed to get source object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("failed to read source object: %w", err)
	}

	info, err := obj.Stat()
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("failed to stat source object: %w", err)
	}

	return data, info, nil
}
