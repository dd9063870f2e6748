package repository

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"team_portal_service/pkg/database"
	errprocess "team_portal_service/pkg/err"

	"github.com/google/uuid"
)

// BlobRepository opaque attachment store, return a download url
type BlobRepository interface {
	Put(ctx context.Context, fileName string, r io.Reader, size int64, contentType string) (string, error)
	// Remove delete the object behind a url returned by Put
	Remove(ctx context.Context, url string) error
}

type blobRepository struct {
	client database.MinIOClientRepo
	now    func() time.Time
}

// NewBlobRepository create minio backed BlobRepository
func NewBlobRepository(client database.MinIOClientRepo) BlobRepository {
	return &blobRepository{client: client, now: time.Now}
}

func (b *blobRepository) Put(ctx context.Context, fileName string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := ObjectName(b.now(), fileName)
	if err := b.client.PutObject(ctx, objectName, r, size, contentType); err != nil {
		return "", errprocess.Persistence(err, "upload attachment")
	}
	return b.client.ObjectURL(objectName), nil
}

func (b *blobRepository) Remove(ctx context.Context, url string) error {
	prefix := b.client.ObjectURL("")
	objectName := strings.TrimPrefix(url, prefix)
	if objectName == url || objectName == "" {
		return errprocess.Validation(fmt.Sprintf("%s is not an attachment url", url))
	}
	if err := b.client.RemoveObject(ctx, objectName); err != nil {
		return errprocess.Persistence(err, "remove attachment")
	}
	return nil
}

// ObjectName chat/yyyy/mm/dd/<uuid><ext>, original name never used as key
func ObjectName(now time.Time, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	return path.Join("chat", now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
