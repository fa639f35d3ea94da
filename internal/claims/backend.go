package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClaimNotFound is returned by backend updates addressed to a claim that
// is not stored. Updates never recreate a missing record.
var ErrClaimNotFound = errors.New("claim record not found")

// AdminOwnerID is written to storage in place of uuid.Nil for administrative
// claims, matching the legacy data layout. Backends translate it both ways
// with EncodeOwner and DecodeOwner.
var AdminOwnerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// EncodeOwner maps an in-memory owner to its stored form.
func EncodeOwner(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return AdminOwnerID
	}
	return id
}

// DecodeOwner maps a stored owner back to its in-memory form.
func DecodeOwner(id uuid.UUID) uuid.UUID {
	if id == AdminOwnerID {
		return uuid.Nil
	}
	return id
}

// ClaimRecord is the durable form of a claim. Backends receive copies and
// may keep them.
type ClaimRecord struct {
	ID              int64
	World           uuid.UUID
	Bounds          Rect
	OwnerID         uuid.UUID
	ParentID        int64
	CreatedAt       time.Time
	PlayerPerms     map[uuid.UUID]Permission
	GroupPerms      map[string]Permission
	FakePlayerPerms map[string]Permission
}

// PlayerRecord is the durable form of a player's quota.
type PlayerRecord struct {
	ID            uuid.UUID
	AccruedBlocks int
	BonusBlocks   int
	LastSeen      time.Time
}

// Backend durably stores claims, permission grants, player quota and group
// bonuses. Methods may be called concurrently from scheduler workers for
// different records; each implementation serializes access per record.
// Loads return nil, nil when the record does not exist.
type Backend interface {
	// Initialize prepares storage: schema migrations, directory layout and the
	// claim id counter. It must run before any other method.
	Initialize(ctx context.Context) error

	// AllocateClaimID returns requested if it is positive and otherwise the
	// next unused id. Ids are never handed out twice, including across restarts.
	AllocateClaimID(requested int64) int64

	// NewClaimRecord stores a new claim with its permissions.
	NewClaimRecord(ctx context.Context, rec ClaimRecord) error

	// UpdateLocation replaces a claim's bounds.
	UpdateLocation(ctx context.Context, id int64, bounds Rect) error

	// UpdateOwner replaces a claim's owner.
	UpdateOwner(ctx context.Context, id int64, owner uuid.UUID) error

	// SetPermission ORs perm into the grantee's existing grant on a claim.
	SetPermission(ctx context.Context, claimID int64, g Grantee, perm Permission) error

	// UnsetPermission removes one grantee's grant on a claim.
	UnsetPermission(ctx context.Context, claimID int64, g Grantee) error

	// UnsetAllPermissions removes every grant on a claim.
	UnsetAllPermissions(ctx context.Context, claimID int64) error

	// UnsetOwnerPermission removes one grantee's grants on every claim owned by owner.
	UnsetOwnerPermission(ctx context.Context, owner uuid.UUID, g Grantee) error

	// UnsetAllOwnerPermissions removes every grant on every claim owned by owner.
	UnsetAllOwnerPermissions(ctx context.Context, owner uuid.UUID) error

	// DeleteClaimCascade removes a claim, its subdivisions and all their grants.
	DeleteClaimCascade(ctx context.Context, id int64) error

	// LoadAllClaims returns every stored claim, top-level and subdivisions.
	LoadAllClaims(ctx context.Context) ([]ClaimRecord, error)

	// LoadClaimRecord returns one claim with its permissions.
	LoadClaimRecord(ctx context.Context, id int64) (*ClaimRecord, error)

	// LoadPlayerRecord returns a player's quota record.
	LoadPlayerRecord(ctx context.Context, id uuid.UUID) (*PlayerRecord, error)

	// LoadRecentPlayers returns players last seen after since. A zero since
	// returns every player, including those never seen.
	LoadRecentPlayers(ctx context.Context, since time.Time) ([]PlayerRecord, error)

	// SavePlayerRecord inserts or replaces a player's quota record.
	SavePlayerRecord(ctx context.Context, rec PlayerRecord) error

	// LoadGroupBonuses returns every group bonus.
	LoadGroupBonuses(ctx context.Context) (map[string]int, error)

	// SaveGroupBonus inserts or replaces one group's bonus.
	SaveGroupBonus(ctx context.Context, group string, blocks int) error

	// ClearOrphanClaims removes top-level claims in worlds that no longer exist
	// and subdivisions whose parent is gone. Returns how many claims were removed.
	ClearOrphanClaims(ctx context.Context, worlds WorldResolver) (int, error)

	// Close releases the storage handle.
	Close() error
}
