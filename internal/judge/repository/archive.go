package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"

	"github.com/klauspost/compress/zstd"
)

const archiveContentType = "application/zstd"

// SourceArchive keeps a copy of submitted source code outside the database.
type SourceArchive interface {
	Archive(ctx context.Context, sub *model.Submission) error
}

// ObjectSourceArchive writes zstd-compressed sources to object storage.
type ObjectSourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	encoder *zstd.Encoder
}

func NewObjectSourceArchive(objectStorage storage.ObjectStorage, bucket string) (*ObjectSourceArchive, error) {
	if objectStorage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &ObjectSourceArchive{storage: objectStorage, bucket: bucket, encoder: enc}, nil
}

func (a *ObjectSourceArchive) Archive(ctx context.Context, sub *model.Submission) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	compressed := a.encoder.EncodeAll([]byte(sub.Code), nil)
	key := ArchiveObjectKey(sub)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), archiveContentType); err != nil {
		return fmt.Errorf("archive source %s: %w", key, err)
	}
	return nil
}

// Load reads back and decompresses an archived source.
func (a *ObjectSourceArchive) Load(ctx context.Context, sub *model.Submission) (string, error) {
	rc, err := a.storage.GetObject(ctx, a.bucket, ArchiveObjectKey(sub))
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return "", fmt.Errorf("open zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return "", fmt.Errorf("decompress source: %w", err)
	}
	return string(data), nil
}

// ArchiveObjectKey lays sources out as submissions/<problem>/<user>/<id>.<language>.zst.
func ArchiveObjectKey(sub *model.Submission) string {
	return path.Join(
		"submissions",
		strconv.FormatInt(sub.ProblemID, 10),
		strconv.FormatInt(sub.UserID, 10),
		sub.ID+"."+sub.Language+".zst",
	)
}
