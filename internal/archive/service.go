// Package archive exports history timelines to object storage so a site's
// change record can be kept after the documents themselves are deleted.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"genbanote/api/internal/history"
	"genbanote/api/internal/util"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// Service writes timeline exports as JSON objects.
type Service struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	return &Service{client: client, bucket: bucket, now: time.Now}, nil
}

// EnsureBucket creates the export bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("archive: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("archive: create bucket: %w", err)
	}
	return nil
}

type export struct {
	Collection string                  `json:"collection"`
	DocID      string                  `json:"docId"`
	ExportedAt time.Time               `json:"exportedAt"`
	Entries    []history.TimelineEntry `json:"entries"`
}

// ExportTimeline stores one document's timeline and returns the object name.
func (s *Service) ExportTimeline(ctx context.Context, collection, docID string, entries []history.TimelineEntry) (string, error) {
	payload, err := json.Marshal(export{
		Collection: collection,
		DocID:      docID,
		ExportedAt: s.now().UTC(),
		Entries:    entries,
	})
	if err != nil {
		return "", fmt.Errorf("archive: encode timeline: %w", err)
	}
	name := fmt.Sprintf("%s/%s/%s.json", collection, docID, util.TimestampedKey())
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", name, err)
	}
	return name, nil
}
