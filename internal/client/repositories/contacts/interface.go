// Package contacts caches the user's peer directory and the peers' profiles
// in the CLI's local SQLite database, for offline listing.
package contacts

import (
	"context"
	"time"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
)

// Contact is one directory entry joined with the peer's profile.
type Contact struct {
	Identity    identity.Identity
	DisplayName string
	AvatarURI   string
	State       string
	Direction   string
	Handle      address.Handle
	UpdatedAt   time.Time
}

type Repository interface {
	// Replace swaps the whole cache for cs in one transaction.
	Replace(ctx context.Context, cs []Contact) error
	List(ctx context.Context) ([]Contact, error)
	// Get returns (nil, nil) when the peer is not cached.
	Get(ctx context.Context, id identity.Identity) (*Contact, error)
	Clear(ctx context.Context) error
}
