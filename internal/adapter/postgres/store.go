package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the database ports using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
