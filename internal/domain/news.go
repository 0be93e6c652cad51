package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Source enumerates the closed set of supported news origins.
type Source string

const (
	SourceCrypto   Source = "crypto"
	SourceHKStocks Source = "hkstocks"
)

// FallbackCategory is stored whenever analysis yields no category match.
const FallbackCategory = "unclassified"

// ParseSource validates a raw source name against the closed set.
func ParseSource(raw string) (Source, bool) {
	switch Source(raw) {
	case SourceCrypto:
		return SourceCrypto, true
	case SourceHKStocks:
		return SourceHKStocks, true
	default:
		return "", false
	}
}

// CandidateRef is a lightweight pointer to a not-yet-fetched item.
// It lives only between the producer and one consumer.
type CandidateRef struct {
	URL          string
	Title        string
	Source       Source
	DiscoveredAt time.Time
	// PublishedAt is set when the listing page already exposes a timestamp;
	// it takes precedence over whatever the detail page reports.
	PublishedAt time.Time
}

// NewsItem is the persisted entity. IdentityKey dedupes items across runs.
type NewsItem struct {
	IdentityKey string
	Title       string
	Body        string
	URL         string
	Source      Source
	Category    string
	Keywords    []string
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityKey derives the stable dedup key from a URL/title pair.
// Normalization lowercases both parts and collapses interior whitespace, so
// cosmetic differences in listings never produce distinct keys.
func IdentityKey(rawURL, title string) string {
	sum := sha256.Sum256([]byte(normalize(rawURL) + "\n" + normalize(title)))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Key populates IdentityKey from the item's own URL and title.
func (n *NewsItem) Key() string {
	if n.IdentityKey == "" {
		n.IdentityKey = IdentityKey(n.URL, n.Title)
	}
	return n.IdentityKey
}

// UpsertOutcome reports how the storage layer resolved one item.
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota
	OutcomeUpdated
	OutcomeSkippedDuplicate
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkippedDuplicate:
		return "skipped"
	default:
		return "unknown"
	}
}

// Subscription binds a user to a keyword they want pushed.
type Subscription struct {
	ID             int64
	UserID         string
	Keyword        string
	TelegramChatID string
	IsActive       bool
	CreatedAt      time.Time
}

// TrendPoint is one day of mention counts for a keyword.
type TrendPoint struct {
	Day   time.Time
	Count int64
}
