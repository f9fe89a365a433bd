package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/formulab/desbank/internal/domain"
)

// rowScanner covers pgx.Row and pgx.Rows so scan helpers work on both.
type rowScanner interface {
	Scan(dest ...any) error
}

// marshalOrEmpty serializes v to JSON, substituting {} for nil maps so
// JSONB columns never hold SQL NULL.
func marshalOrEmpty(v map[string]any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(v)
}

// wrapNoRows turns pgx.ErrNoRows into domain.ErrNotFound under the given
// message; any other error is wrapped as-is.
func wrapNoRows(err error, format string, args ...any) error {
	cause := err
	if errors.Is(err, pgx.ErrNoRows) {
		cause = domain.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, cause)...)
}

// expectOneRow maps an Exec that touched zero rows to domain.ErrNotFound.
func expectOneRow(tag pgconn.CommandTag, err error, format string, args ...any) error {
	switch {
	case err != nil:
		return fmt.Errorf(format+": %w", append(args, err)...)
	case tag.RowsAffected() == 0:
		return fmt.Errorf(format+": %w", append(args, domain.ErrNotFound)...)
	}
	return nil
}
