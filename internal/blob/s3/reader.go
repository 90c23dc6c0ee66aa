package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/predictamm/internal/domain"
)

// Reader serves metadata documents and the archive inventory out of the
// client's bucket.
type Reader struct {
	client *s3.Client
	bucket string
}

var (
	_ domain.DocumentReader = (*Reader)(nil)
	_ domain.ArchiveIndex   = (*Reader)(nil)
)

// defaultDocumentLimit applies when ReadDocument is given no limit.
const defaultDocumentLimit = 1 << 20

// NewReader creates a Reader on the client's configured bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// ReadDocument downloads key and returns its body. Objects larger than limit
// bytes are refused without reading them.
func (r *Reader) ReadDocument(ctx context.Context, key string, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = defaultDocumentLimit
	}
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: read %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	defer out.Body.Close()

	if size := aws.ToInt64(out.ContentLength); size > limit {
		return nil, fmt.Errorf("s3blob: read %s: %d bytes exceeds limit %d", key, size, limit)
	}
	body, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("s3blob: read %s: body exceeds limit %d", key, limit)
	}
	return body, nil
}

// ListArchives returns every file under archive/<kind>/, oldest key first.
func (r *Reader) ListArchives(ctx context.Context, kind string) ([]domain.ArchiveObject, error) {
	prefix := archivePrefix(kind)
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})

	var objs []domain.ArchiveObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".jsonl") {
				continue
			}
			o := domain.ArchiveObject{Key: key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			objs = append(objs, o)
		}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

// Exists reports whether key is present.
func (r *Reader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", key, err)
	}
}

// isNotFound matches NoSuchKey from GetObject, NotFound from HeadObject, and
// bare 404 responses from S3-compatible stores.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
