// Package metadata handles the descriptive side-channel attached to a
// market: a JSON document referenced by URI and an inline marker in the
// question text. The engine core never reads it.
package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Version is written into every payload this package builds.
const Version = "ph-v1"

// MaxQuestionLen bounds the human-readable question.
const MaxQuestionLen = 200

const (
	markerPrefix = "<metadata:"
	markerSuffix = ">"
)

// Category groups markets for presentation.
type Category string

const (
	CategoryFinance  Category = "Finance"
	CategoryWeather  Category = "Weather"
	CategoryPolitics Category = "Politics"
	CategorySports   Category = "Sports"
	CategoryCrypto   Category = "Crypto"
)

var categories = []Category{CategoryFinance, CategoryWeather, CategoryPolitics, CategorySports, CategoryCrypto}

// ParseCategory matches s case-insensitively against the known categories.
// An empty string is accepted and yields "".
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("metadata: unknown category %q", s)
}

// Payload is the metadata document stored off-engine.
type Payload struct {
	Question        string   `json:"question"`
	Description     string   `json:"description,omitempty"`
	Category        Category `json:"category,omitempty"`
	EndDate         string   `json:"endDate,omitempty"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	CreatedBy       string   `json:"createdBy,omitempty"`
	ChainID         int64    `json:"chainId,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	MetadataVersion string   `json:"metadataVersion"`
}

// Params are the creator-supplied fields of a payload.
type Params struct {
	Question    string
	Description string
	Category    Category
	EndDate     time.Time
	ImageURL    string
}

// Validate rejects an empty or overlong question and an end date that is not
// after now.
func (p Params) Validate(now time.Time) error {
	q := strings.TrimSpace(p.Question)
	if q == "" {
		return fmt.Errorf("metadata: question is required")
	}
	if len(q) > MaxQuestionLen {
		return fmt.Errorf("metadata: question is %d characters, max %d", len(q), MaxQuestionLen)
	}
	if !p.EndDate.IsZero() && !p.EndDate.After(now) {
		return fmt.Errorf("metadata: end date %s is not in the future", p.EndDate.Format(time.RFC3339))
	}
	return nil
}

// BuildPayload assembles a payload stamped with now.
func BuildPayload(p Params, creator common.Address, chainID int64, now time.Time) Payload {
	out := Payload{
		Question:        strings.TrimSpace(p.Question),
		Description:     strings.TrimSpace(p.Description),
		Category:        p.Category,
		ImageURL:        strings.TrimSpace(p.ImageURL),
		ChainID:         chainID,
		CreatedAt:       now.UTC().Format(time.RFC3339Nano),
		MetadataVersion: Version,
	}
	if creator != (common.Address{}) {
		out.CreatedBy = creator.Hex()
	}
	if !p.EndDate.IsZero() {
		out.EndDate = p.EndDate.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// EncodeQuestion joins the question, an optional description and an optional
// metadata marker into the on-engine question text.
func EncodeQuestion(question, description, uri string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(question))
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	if uri != "" {
		b.WriteString("\n\n")
		b.WriteString(markerPrefix)
		b.WriteString(uri)
		b.WriteString(markerSuffix)
	}
	return b.String()
}

// ExtractMarker splits raw question text into the displayable text and the
// URI of its last metadata marker. A missing or unterminated marker yields
// an empty URI and the whole trimmed text.
func ExtractMarker(raw string) (text, uri string) {
	start := strings.LastIndex(raw, markerPrefix)
	if start < 0 {
		return strings.TrimSpace(raw), ""
	}
	end := strings.Index(raw[start:], markerSuffix)
	if end < 0 {
		return strings.TrimSpace(raw), ""
	}
	uri = strings.TrimSpace(raw[start+len(markerPrefix) : start+end])
	return strings.TrimSpace(raw[:start]), uri
}
