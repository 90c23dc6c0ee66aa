package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/predictamm/internal/blob/s3"
	"github.com/alanyoungcy/predictamm/internal/domain"
)

// DefaultGateway resolves ipfs:// URIs when no gateway is configured.
const DefaultGateway = "https://gateway.pinata.cloud/ipfs/"

const (
	dataURIPrefix = "data:application/json;base64,"
	maxDocBytes   = 1 << 20
)

// Resolver fetches payloads from any supported URI scheme.
type Resolver struct {
	gateway    string
	httpClient *http.Client
	docs       domain.DocumentReader
	bucket     string
}

// ResolverConfig configures a Resolver. Documents and Bucket are optional;
// without them s3:// URIs are rejected.
type ResolverConfig struct {
	Gateway   string
	Timeout   time.Duration
	Documents domain.DocumentReader
	Bucket    string
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	gw := cfg.Gateway
	if gw == "" {
		gw = DefaultGateway
	}
	if !strings.HasSuffix(gw, "/") {
		gw += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		gateway:    gw,
		httpClient: &http.Client{Timeout: timeout},
		docs:       cfg.Documents,
		bucket:     cfg.Bucket,
	}
}

// Fetch loads and decodes the payload at uri. Supported schemes are data:,
// ipfs://, http(s):// and s3://.
func (r *Resolver) Fetch(ctx context.Context, uri string) (Payload, error) {
	var (
		body []byte
		err  error
	)
	switch {
	case uri == "":
		return Payload{}, fmt.Errorf("metadata: empty uri: %w", domain.ErrNotFound)
	case strings.HasPrefix(uri, dataURIPrefix):
		body, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
		if err != nil {
			return Payload{}, fmt.Errorf("metadata: decode data uri: %w", err)
		}
	case strings.HasPrefix(uri, "ipfs://"):
		body, err = r.get(ctx, r.gateway+strings.TrimPrefix(uri, "ipfs://"))
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		body, err = r.get(ctx, uri)
	case strings.HasPrefix(uri, "s3://"):
		body, err = r.getBlob(ctx, uri)
	default:
		return Payload{}, fmt.Errorf("metadata: unsupported uri scheme in %q", uri)
	}
	if err != nil {
		return Payload{}, fmt.Errorf("metadata: fetch %s: %w", uri, err)
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("metadata: decode %s: %w", uri, err)
	}
	return p, nil
}

// FetchQuestion extracts the marker from raw question text and fetches its
// payload. Text without a marker returns a zero payload and no error.
func (r *Resolver) FetchQuestion(ctx context.Context, raw string) (string, Payload, error) {
	text, uri := ExtractMarker(raw)
	if uri == "" {
		return text, Payload{}, nil
	}
	p, err := r.Fetch(ctx, uri)
	return text, p, err
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (r *Resolver) getBlob(ctx context.Context, uri string) ([]byte, error) {
	if r.docs == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	bucket, key, err := s3blob.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if bucket != r.bucket {
		return nil, fmt.Errorf("bucket %q is not the configured bucket %q", bucket, r.bucket)
	}
	return r.docs.ReadDocument(ctx, key, maxDocBytes)
}
