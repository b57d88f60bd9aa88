// Package db opens the run history database for SQLite or PostgreSQL.
package db

import "github.com/jmoiron/sqlx"

// Pool provides separate read and write connections.
//
// For SQLite in WAL mode the writer is a single connection, so writes are
// serialized, while the reader pool serves SELECTs concurrently from WAL
// snapshots. For PostgreSQL both sides are the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer is used for INSERT, UPDATE and DELETE.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader is used for SELECT.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// DriverName returns the database/sql driver of the pool.
func (p *Pool) DriverName() string { return p.writer.DriverName() }

// Close closes both sides once.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
