package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DocumentStore persists JSON documents and names them by URI.
// *s3blob.Writer satisfies it.
type DocumentStore interface {
	PutJSON(ctx context.Context, path string, v any) error
	URI(path string) string
}

// Publisher stores payloads and returns the URI to embed in the question.
type Publisher struct {
	store DocumentStore
}

// NewPublisher creates a Publisher. A nil store makes every payload an
// inline data: URI.
func NewPublisher(store DocumentStore) *Publisher {
	return &Publisher{store: store}
}

// Publish writes p under metadata/<keccak256 of its JSON>.json and returns
// the document's URI.
func (p *Publisher) Publish(ctx context.Context, payload Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("metadata: marshal payload: %w", err)
	}
	if p.store == nil {
		return DataURI(body), nil
	}

	path := ContentPath(body)
	if err := p.store.PutJSON(ctx, path, json.RawMessage(body)); err != nil {
		return "", fmt.Errorf("metadata: publish: %w", err)
	}
	return p.store.URI(path), nil
}

// ContentPath is the content-addressed object key for a serialized payload.
func ContentPath(body []byte) string {
	return "metadata/" + hexutil.Encode(ethcrypto.Keccak256(body))[2:] + ".json"
}

// DataURI encodes body as a base64 data: URI.
func DataURI(body []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(body)
}
