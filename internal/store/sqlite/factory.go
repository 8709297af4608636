package sqlite

import (
	"fmt"

	"github.com/nextlevelbuilder/goclaw-tape/internal/store"
)

// NewStores opens a SQLite database file at path and builds one of each
// store implementation over it.
func NewStores(path string) (*store.Stores, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: new stores: %w", err)
	}
	if err := EnsureSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite: new stores: %w", err)
	}
	return &store.Stores{
		Rooms:    NewRoomStore(db),
		Agents:   NewAgentStore(db),
		Messages: NewMessageStore(db),
		Sessions: NewSessionStore(db),
	}, nil
}
