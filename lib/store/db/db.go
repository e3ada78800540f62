// Package db implements the opening and graceful closing of database connections.
package db

import (
	"github.com/tarancss/txd/lib/store"
	"github.com/tarancss/txd/lib/store/memory"
	"github.com/tarancss/txd/lib/store/mongo"
	"github.com/tarancss/txd/lib/store/postgres"
)

const (
	MEMORY   string = "memory"
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// New returns a new database connection according to the options (database type).
func New(options, connection string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return memory.New(), nil
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return dh.(*memory.Memory).CloseMemory()
}
