package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind mirrors the two ledgers merged into the feed.
type Kind string

const (
	KindPoints  Kind = "points"
	KindHolding Kind = "holding"
)

// Bucket is a relative date-range filter.
type Bucket string

const (
	BucketToday Bucket = "today"
	Bucket7d    Bucket = "7d"
	Bucket30d   Bucket = "30d"
	Bucket90d   Bucket = "90d"
	BucketAll   Bucket = "all"
)

// Item is one row of the merged activity feed.
type Item struct {
	ID        snowflake.ID `json:"id"`
	Kind      Kind         `json:"kind"`
	ProductID snowflake.ID `json:"product_id,omitempty"`
	HoldingID snowflake.ID `json:"holding_id,omitempty"`
	Delta     int64        `json:"delta"`
	Reason    string       `json:"reason,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type FeedRequest struct {
	TenantID   snowflake.ID
	CustomerID snowflake.ID
	Kind       Kind   // empty means both
	Search     string // case-insensitive substring on reason/notes
	Bucket     Bucket // defaults to all
	Limit      int
	Offset     int
}

type FeedResponse struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// Service is the read-combining facade over both ledgers. It never mutates.
type Service interface {
	GetActivityFeed(ctx context.Context, req FeedRequest) (FeedResponse, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidBucket   = errors.New("invalid_bucket")
)
