package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Pool *pgxpool.Pool

// Init connects the audit-trail pool. An empty URL is not an error: the
// engine keeps all authoritative state in memory and the trail is simply
// disabled (services check Pool == nil).
func Init(url string) error {
	if url == "" {
		return nil
	}
	var err error
	Pool, err = pgxpool.New(context.Background(), url)
	return err
}

func Close() {
	if Pool != nil {
		Pool.Close()
	}
}
