package option

import (
	"time"

	"github.com/smallbiznis/reserva/pkg/db/pagination"
	"gorm.io/gorm"
)

// Option mutates a gorm statement before execution.
type Option interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination applies a cursor keyset filter plus a limit of
// pageSize+1 so callers can detect whether another page exists.
func ApplyPagination(page pagination.Pagination) Option {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := o.page.PageSize
	if size <= 0 {
		size = 10
	}

	if o.page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(o.page.PageToken)
		if err == nil && cursor != nil {
			if ts, tErr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); tErr == nil {
				stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", ts, ts, cursor.ID)
			}
		}
	}

	return stmt.Limit(size + 1)
}
