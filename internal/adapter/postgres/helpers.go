package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spendsight/spendsight/internal/domain"
	"github.com/spendsight/spendsight/internal/middleware"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// tenantFromCtx extracts the tenant ID from the request context.
// All tenant-scoped queries must use this to enforce isolation.
func tenantFromCtx(ctx context.Context) string {
	return middleware.TenantIDFromContext(ctx)
}

// storeErr wraps err with a formatted message, translating driver errors
// into their domain equivalents. Callers outside this package switch on
// the domain sentinels alone, so no pgx type escapes the adapter.
func storeErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch code := sqlState(err); {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case code == pgerrcode.UniqueViolation:
		return fmt.Errorf("%s: %w", msg, domain.ErrAlreadyExists)
	case code == pgerrcode.InvalidTextRepresentation:
		// Usually a path parameter that is not a UUID.
		return fmt.Errorf("%w: %s: malformed identifier", domain.ErrValidation, msg)
	case pgerrcode.IsConnectionException(code):
		return fmt.Errorf("%s: %w", msg, domain.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// execExpectOne translates the outcome of an Exec that must affect
// exactly one row. Zero rows means the target does not exist in the
// caller's tenant.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return storeErr(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	}
	return nil
}

// marshalMap serializes a string map for a JSONB column. nil maps become {}.
func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

// unmarshalMap deserializes a JSONB column into a string map.
func unmarshalMap(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return m, nil
}
