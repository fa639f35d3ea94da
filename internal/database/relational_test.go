package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"claims-go/internal/claims"
	"claims-go/internal/database/migrations"
)

var (
	overworld = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	nether    = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	alice     = uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	bob       = uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
)

// worldTable resolves a fixed set of worlds.
type worldTable map[string]uuid.UUID

func (w worldTable) WorldExists(id uuid.UUID) bool {
	for _, v := range w {
		if v == id {
			return true
		}
	}
	return false
}

func (w worldTable) WorldByName(name string) (uuid.UUID, bool) {
	id, ok := w[name]
	return id, ok
}

// newTestBackend creates an initialized in-memory backend.
func newTestBackend(t *testing.T) *RelationalBackend {
	t.Helper()

	b, err := NewRelationalBackend(migrations.SQLite, ":memory:", Options{})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return b
}

func newRecord(b *RelationalBackend, world uuid.UUID, r claims.Rect, owner uuid.UUID, parent int64) claims.ClaimRecord {
	return claims.ClaimRecord{
		ID:              b.AllocateClaimID(0),
		World:           world,
		Bounds:          r,
		OwnerID:         owner,
		ParentID:        parent,
		CreatedAt:       time.UnixMilli(1705314600000),
		PlayerPerms:     map[uuid.UUID]claims.Permission{},
		GroupPerms:      map[string]claims.Permission{},
		FakePlayerPerms: map[string]claims.Permission{},
	}
}

func mustInsert(t *testing.T, b *RelationalBackend, rec claims.ClaimRecord) {
	t.Helper()
	if err := b.NewClaimRecord(context.Background(), rec); err != nil {
		t.Fatalf("NewClaimRecord(%d) error = %v", rec.ID, err)
	}
}

func TestRelationalBackend_ClaimRoundTrip(t *testing.T) {
	t.Run("stores claims with all grant kinds", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		top := newRecord(b, overworld, claims.NewRect(-20, -20, 20, 20), alice, 0)
		top.PlayerPerms[bob] = claims.PermBuild | claims.PermAccess
		top.PlayerPerms[uuid.Nil] = claims.PermAccess
		top.GroupPerms["vip.members"] = claims.PermContainers
		top.FakePlayerPerms["hopper"] = claims.PermContainers
		mustInsert(t, b, top)

		sub := newRecord(b, overworld, claims.NewRect(0, 0, 5, 5), alice, top.ID)
		mustInsert(t, b, sub)

		all, err := b.LoadAllClaims(ctx)
		if err != nil {
			t.Fatalf("LoadAllClaims() error = %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("LoadAllClaims() returned %d claims, want 2", len(all))
		}

		got, err := b.LoadClaimRecord(ctx, top.ID)
		if err != nil {
			t.Fatalf("LoadClaimRecord() error = %v", err)
		}
		if got == nil {
			t.Fatal("LoadClaimRecord() returned nil")
		}
		if got.Bounds != top.Bounds {
			t.Errorf("Bounds = %v, want %v", got.Bounds, top.Bounds)
		}
		if got.OwnerID != alice || got.World != overworld || got.ParentID != 0 {
			t.Errorf("got owner=%s world=%s parent=%d", got.OwnerID, got.World, got.ParentID)
		}
		if !got.CreatedAt.Equal(top.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, top.CreatedAt)
		}
		if got.PlayerPerms[bob] != claims.PermBuild|claims.PermAccess {
			t.Errorf("bob perm = %v", got.PlayerPerms[bob])
		}
		if got.PlayerPerms[uuid.Nil] != claims.PermAccess {
			t.Errorf("public perm = %v", got.PlayerPerms[uuid.Nil])
		}
		if got.GroupPerms["vip.members"] != claims.PermContainers {
			t.Errorf("group perm = %v", got.GroupPerms["vip.members"])
		}
		if got.FakePlayerPerms["hopper"] != claims.PermContainers {
			t.Errorf("fake player perm = %v", got.FakePlayerPerms["hopper"])
		}
		if len(got.GroupPerms) != 1 {
			t.Errorf("fake player leaked into group perms: %v", got.GroupPerms)
		}

		gotSub, err := b.LoadClaimRecord(ctx, sub.ID)
		if err != nil || gotSub == nil {
			t.Fatalf("LoadClaimRecord(sub) = %v, %v", gotSub, err)
		}
		if gotSub.ParentID != top.ID {
			t.Errorf("sub ParentID = %d, want %d", gotSub.ParentID, top.ID)
		}
	})

	t.Run("stores administrative owner as sentinel", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		rec := newRecord(b, overworld, claims.NewRect(0, 0, 9, 9), uuid.Nil, 0)
		mustInsert(t, b, rec)

		var stored string
		if err := b.DB().QueryRow("SELECT owner FROM claims WHERE id = ?", rec.ID).Scan(&stored); err != nil {
			t.Fatalf("reading owner: %v", err)
		}
		if stored != claims.AdminOwnerID.String() {
			t.Errorf("stored owner = %q, want %q", stored, claims.AdminOwnerID)
		}

		got, err := b.LoadClaimRecord(ctx, rec.ID)
		if err != nil {
			t.Fatalf("LoadClaimRecord() error = %v", err)
		}
		if got.OwnerID != uuid.Nil {
			t.Errorf("OwnerID = %s, want nil", got.OwnerID)
		}
	})

	t.Run("returns nil for missing claim", func(t *testing.T) {
		b := newTestBackend(t)

		got, err := b.LoadClaimRecord(context.Background(), 999)
		if err != nil {
			t.Fatalf("LoadClaimRecord() error = %v", err)
		}
		if got != nil {
			t.Errorf("LoadClaimRecord() = %v, want nil", got)
		}
	})
}

func TestRelationalBackend_Updates(t *testing.T) {
	t.Run("updates location and owner", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		rec := newRecord(b, overworld, claims.NewRect(0, 0, 9, 9), alice, 0)
		mustInsert(t, b, rec)

		moved := claims.NewRect(10, 10, 30, 30)
		if err := b.UpdateLocation(ctx, rec.ID, moved); err != nil {
			t.Fatalf("UpdateLocation() error = %v", err)
		}
		if err := b.UpdateOwner(ctx, rec.ID, bob); err != nil {
			t.Fatalf("UpdateOwner() error = %v", err)
		}

		got, _ := b.LoadClaimRecord(ctx, rec.ID)
		if got.Bounds != moved {
			t.Errorf("Bounds = %v, want %v", got.Bounds, moved)
		}
		if got.OwnerID != bob {
			t.Errorf("OwnerID = %s, want %s", got.OwnerID, bob)
		}
	})

	t.Run("never recreates a missing claim", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		err := b.UpdateLocation(ctx, 77, claims.NewRect(0, 0, 1, 1))
		if !errors.Is(err, claims.ErrClaimNotFound) {
			t.Errorf("UpdateLocation() error = %v, want ErrClaimNotFound", err)
		}
		err = b.UpdateOwner(ctx, 77, bob)
		if !errors.Is(err, claims.ErrClaimNotFound) {
			t.Errorf("UpdateOwner() error = %v, want ErrClaimNotFound", err)
		}

		got, _ := b.LoadClaimRecord(ctx, 77)
		if got != nil {
			t.Error("update recreated the claim")
		}
	})
}

func TestRelationalBackend_Permissions(t *testing.T) {
	t.Run("set permission ors into existing grant", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		rec := newRecord(b, overworld, claims.NewRect(0, 0, 9, 9), alice, 0)
		mustInsert(t, b, rec)

		for _, p := range []claims.Permission{claims.PermBuild, claims.PermAccess} {
			if err := b.SetPermission(ctx, rec.ID, claims.PlayerGrantee(bob), p); err != nil {
				t.Fatalf("SetPermission() error = %v", err)
			}
			if err := b.SetPermission(ctx, rec.ID, claims.GroupGrantee("mods"), p); err != nil {
				t.Fatalf("SetPermission() error = %v", err)
			}
		}

		got, _ := b.LoadClaimRecord(ctx, rec.ID)
		if got.PlayerPerms[bob] != claims.PermBuild|claims.PermAccess {
			t.Errorf("bob perm = %v, want build|access", got.PlayerPerms[bob])
		}
		if got.GroupPerms["mods"] != claims.PermBuild|claims.PermAccess {
			t.Errorf("mods perm = %v, want build|access", got.GroupPerms["mods"])
		}
	})

	t.Run("unsets single and all grants", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		rec := newRecord(b, overworld, claims.NewRect(0, 0, 9, 9), alice, 0)
		rec.PlayerPerms[bob] = claims.PermBuild
		rec.GroupPerms["mods"] = claims.PermManage
		rec.FakePlayerPerms["hopper"] = claims.PermContainers
		mustInsert(t, b, rec)

		if err := b.UnsetPermission(ctx, rec.ID, claims.FakePlayerGrantee("hopper")); err != nil {
			t.Fatalf("UnsetPermission() error = %v", err)
		}
		got, _ := b.LoadClaimRecord(ctx, rec.ID)
		if len(got.FakePlayerPerms) != 0 || len(got.GroupPerms) != 1 {
			t.Errorf("after unset: groups=%v fake=%v", got.GroupPerms, got.FakePlayerPerms)
		}

		if err := b.UnsetAllPermissions(ctx, rec.ID); err != nil {
			t.Fatalf("UnsetAllPermissions() error = %v", err)
		}
		got, _ = b.LoadClaimRecord(ctx, rec.ID)
		if len(got.PlayerPerms)+len(got.GroupPerms)+len(got.FakePlayerPerms) != 0 {
			t.Errorf("grants remain after UnsetAllPermissions: %+v", got)
		}
	})

	t.Run("owner scope unsets only touch that owner's claims", func(t *testing.T) {
		b := newTestBackend(t)
		ctx := context.Background()

		mine := newRecord(b, overworld, claims.NewRect(0, 0, 9, 9), alice, 0)
		mine.PlayerPerms[bob] = claims.PermBuild
		mine.GroupPerms["mods"] = claims.PermBuild
		mustInsert(t, b, mine)
		theirs := newRecord(b, overworld, claims.NewRect(20, 20, 29, 29), bob, 0)
		theirs.PlayerPerms[alice] = claims.PermBuild
		theirs.GroupPerms["mods"] = claims.PermBuild
		mustInsert(t, b, theirs)

		if err := b.UnsetOwnerPermission(ctx, alice, claims.GroupGrantee("mods")); err != nil {
			t.Fatalf("UnsetOwnerPermission() error = %v", err)
		}
		got, _ := b.LoadClaimRecord(ctx, mine.ID)
		if _, ok := got.GroupPerms["mods"]; ok {
			t.Error("mods grant survived on alice's claim")
		}
		if got.PlayerPerms[bob] != claims.PermBuild {
			t.Error("unrelated grant removed")
		}

		if err := b.UnsetAllOwnerPermissions(ctx, alice); err != nil {
			t.Fatalf("UnsetAllOwnerPermissions() error = %v", err)
		}
		got, _ = b.LoadClaimRecord(ctx, mine.ID)
		if len(got.PlayerPerms) != 0 {
			t.Errorf("alice's claim still has grants: %v", got.PlayerPerms)
		}
		other, _ := b.LoadClaimRecord(ctx, theirs.ID)
		if len(other.PlayerPerms) != 1 || len(other.GroupPerms) != 1 {
			t.Errorf("bob's claim lost grants: %+v", other)
		}
	})
}

func TestRelationalBackend_DeleteClaimCascade(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	top := newRecord(b, overworld, claims.NewRect(0, 0, 50, 50), alice, 0)
	top.PlayerPerms[bob] = claims.PermBuild
	mustInsert(t, b, top)
	sub := newRecord(b, overworld, claims.NewRect(1, 1, 5, 5), alice, top.ID)
	sub.GroupPerms["mods"] = claims.PermManage
	mustInsert(t, b, sub)
	keep := newRecord(b, overworld, claims.NewRect(100, 100, 110, 110), bob, 0)
	mustInsert(t, b, keep)

	if err := b.DeleteClaimCascade(ctx, top.ID); err != nil {
		t.Fatalf("DeleteClaimCascade() error = %v", err)
	}

	all, err := b.LoadAllClaims(ctx)
	if err != nil {
		t.Fatalf("LoadAllClaims() error = %v", err)
	}
	if len(all) != 1 || all[0].ID != keep.ID {
		t.Errorf("remaining claims = %+v, want only %d", all, keep.ID)
	}

	var perms int
	b.DB().QueryRow("SELECT COUNT(*) FROM claim_player_perms").Scan(&perms)
	var groups int
	b.DB().QueryRow("SELECT COUNT(*) FROM claim_group_perms").Scan(&groups)
	if perms+groups != 0 {
		t.Errorf("permission rows remain: players=%d groups=%d", perms, groups)
	}
}

func TestRelationalBackend_ClaimIDs(t *testing.T) {
	t.Run("honors explicit ids and skips past them", func(t *testing.T) {
		b := newTestBackend(t)

		if got := b.AllocateClaimID(10); got != 10 {
			t.Errorf("AllocateClaimID(10) = %d", got)
		}
		if got := b.AllocateClaimID(0); got != 11 {
			t.Errorf("AllocateClaimID(0) = %d, want 11", got)
		}
	})

	t.Run("does not reuse ids of deleted claims after restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "claims.db")
		ctx := context.Background()

		b, err := NewRelationalBackend(migrations.SQLite, path, Options{})
		if err != nil {
			t.Fatalf("NewRelationalBackend() error = %v", err)
		}
		if err := b.Initialize(ctx); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		var last int64
		for range 3 {
			rec := newRecord(b, overworld, claims.NewRect(0, 0, 1, 1), alice, 0)
			rec.Bounds = claims.NewRect(int(rec.ID)*10, 0, int(rec.ID)*10+1, 1)
			mustInsert(t, b, rec)
			last = rec.ID
		}
		if err := b.DeleteClaimCascade(ctx, last); err != nil {
			t.Fatalf("DeleteClaimCascade() error = %v", err)
		}
		b.Close()

		b, err = NewRelationalBackend(migrations.SQLite, path, Options{})
		if err != nil {
			t.Fatalf("reopen error = %v", err)
		}
		defer b.Close()
		if err := b.Initialize(ctx); err != nil {
			t.Fatalf("Initialize() after reopen error = %v", err)
		}
		if got := b.AllocateClaimID(0); got != last+1 {
			t.Errorf("AllocateClaimID(0) after restart = %d, want %d", got, last+1)
		}
	})
}

func TestRelationalBackend_Players(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	now := time.UnixMilli(1705314600000)

	recent := claims.PlayerRecord{ID: alice, AccruedBlocks: 100, BonusBlocks: 5, LastSeen: now}
	stale := claims.PlayerRecord{ID: bob, AccruedBlocks: 50, LastSeen: now.Add(-60 * 24 * time.Hour)}
	for _, rec := range []claims.PlayerRecord{recent, stale} {
		if err := b.SavePlayerRecord(ctx, rec); err != nil {
			t.Fatalf("SavePlayerRecord() error = %v", err)
		}
	}

	recent.AccruedBlocks = 120
	if err := b.SavePlayerRecord(ctx, recent); err != nil {
		t.Fatalf("SavePlayerRecord() replace error = %v", err)
	}

	got, err := b.LoadPlayerRecord(ctx, alice)
	if err != nil || got == nil {
		t.Fatalf("LoadPlayerRecord() = %v, %v", got, err)
	}
	if got.AccruedBlocks != 120 || got.BonusBlocks != 5 || !got.LastSeen.Equal(now) {
		t.Errorf("LoadPlayerRecord() = %+v", got)
	}

	missing, err := b.LoadPlayerRecord(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Errorf("LoadPlayerRecord(unknown) = %v, %v; want nil, nil", missing, err)
	}

	list, err := b.LoadRecentPlayers(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("LoadRecentPlayers() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != alice {
		t.Errorf("LoadRecentPlayers() = %+v, want only alice", list)
	}
}

func TestRelationalBackend_GroupBonuses(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, v := range []int{5, 10} {
		if err := b.SaveGroupBonus(ctx, "vip", v); err != nil {
			t.Fatalf("SaveGroupBonus() error = %v", err)
		}
	}
	if err := b.SaveGroupBonus(ctx, "donor.gold", 300); err != nil {
		t.Fatalf("SaveGroupBonus() error = %v", err)
	}

	got, err := b.LoadGroupBonuses(ctx)
	if err != nil {
		t.Fatalf("LoadGroupBonuses() error = %v", err)
	}
	if got["vip"] != 10 || got["donor.gold"] != 300 || len(got) != 2 {
		t.Errorf("LoadGroupBonuses() = %v", got)
	}
}

func TestRelationalBackend_ClearOrphanClaims(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	live := newRecord(b, overworld, claims.NewRect(0, 0, 10, 10), alice, 0)
	mustInsert(t, b, live)
	liveSub := newRecord(b, overworld, claims.NewRect(1, 1, 2, 2), alice, live.ID)
	mustInsert(t, b, liveSub)
	gone := newRecord(b, nether, claims.NewRect(0, 0, 10, 10), alice, 0)
	gone.PlayerPerms[bob] = claims.PermBuild
	mustInsert(t, b, gone)
	goneSub := newRecord(b, nether, claims.NewRect(1, 1, 2, 2), alice, gone.ID)
	mustInsert(t, b, goneSub)

	// A subdivision whose parent row vanished outside the backend.
	stray := newRecord(b, overworld, claims.NewRect(40, 40, 41, 41), alice, 0)
	mustInsert(t, b, stray)
	if _, err := b.DB().Exec("UPDATE claims SET parent_id = 9999 WHERE id = ?", stray.ID); err != nil {
		t.Fatalf("orphaning claim: %v", err)
	}

	n, err := b.ClearOrphanClaims(ctx, worldTable{"world": overworld})
	if err != nil {
		t.Fatalf("ClearOrphanClaims() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ClearOrphanClaims() = %d, want 3", n)
	}

	all, _ := b.LoadAllClaims(ctx)
	ids := map[int64]bool{}
	for _, rec := range all {
		ids[rec.ID] = true
	}
	if len(ids) != 2 || !ids[live.ID] || !ids[liveSub.ID] {
		t.Errorf("remaining ids = %v, want %d and %d", ids, live.ID, liveSub.ID)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c IN (SELECT d FROM u WHERE e = ?)"

	if got := rebind(migrations.SQLite, q); got != q {
		t.Errorf("rebind(sqlite) = %q, want unchanged", got)
	}
	want := "SELECT a FROM t WHERE b = $1 AND c IN (SELECT d FROM u WHERE e = $2)"
	if got := rebind(migrations.Postgres, q); got != want {
		t.Errorf("rebind(postgres) = %q, want %q", got, want)
	}
}
