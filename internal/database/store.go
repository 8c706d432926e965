package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashmitsharp/homeledger-api/internal/database/db"
	"github.com/ashmitsharp/homeledger-api/internal/services"
)

// Store is the pool-backed query set plus transaction support
type Store struct {
	*db.Queries
	pool *pgxpool.Pool
}

// NewStore wraps a pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: db.New(pool),
		pool:    pool,
	}
}

// WithinTx runs fn in one transaction, rolling back on error
func (s *Store) WithinTx(ctx context.Context, fn func(services.ImportStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{Queries: s.Queries.WithTx(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txStore is a Store bound to an open transaction. Nested calls reuse it.
type txStore struct {
	*db.Queries
}

func (t *txStore) WithinTx(_ context.Context, fn func(services.ImportStore) error) error {
	return fn(t)
}
