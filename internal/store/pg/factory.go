package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
)

// NewStores opens a Postgres connection pool at dsn and builds one of
// each store implementation over it.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: new stores: %w", err)
	}
	return &store.Stores{
		Rooms:    NewRoomStore(db),
		Agents:   NewAgentStore(db),
		Messages: NewMessageStore(db),
		Sessions: NewSessionStore(db),
	}, nil
}
