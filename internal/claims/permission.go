package claims

import (
	"strings"

	"github.com/google/uuid"
)

// Permission is a bitmask of independent claim permission flags.
type Permission uint8

const (
	PermManage     Permission = 1
	PermBuild      Permission = 2
	PermContainers Permission = 4
	PermAccess     Permission = 8
)

// Has reports whether every bit of q is set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

func (p Permission) String() string {
	if p == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  Permission
		name string
	}{
		{PermManage, "manage"},
		{PermBuild, "build"},
		{PermContainers, "containers"},
		{PermAccess, "access"},
	} {
		if p&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// ParsePermission parses a "|" or "," separated list of flag names.
func ParsePermission(s string) (Permission, bool) {
	var p Permission
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "manage":
			p |= PermManage
		case "build":
			p |= PermBuild
		case "containers":
			p |= PermContainers
		case "access":
			p |= PermAccess
		default:
			return 0, false
		}
	}
	return p, p != 0
}

// GranteeKind identifies which permission map a Grantee lives in.
type GranteeKind uint8

const (
	GranteePlayer GranteeKind = iota
	GranteeGroup
	GranteeFakePlayer
)

// fakePlayerPrefix marks fake player names when they share storage with groups.
const fakePlayerPrefix = "#"

// Grantee is the subject of a permission grant.
type Grantee struct {
	Kind   GranteeKind
	Player uuid.UUID
	Name   string
}

// PlayerGrantee grants to a single player.
func PlayerGrantee(id uuid.UUID) Grantee {
	return Grantee{Kind: GranteePlayer, Player: id}
}

// PublicGrantee grants to everyone. It is stored as the nil player UUID.
func PublicGrantee() Grantee {
	return PlayerGrantee(uuid.Nil)
}

// GroupGrantee grants to members of an external permission group.
func GroupGrantee(name string) Grantee {
	return Grantee{Kind: GranteeGroup, Name: name}
}

// FakePlayerGrantee grants to a synthetic identity such as a machine.
func FakePlayerGrantee(name string) Grantee {
	return Grantee{Kind: GranteeFakePlayer, Name: name}
}

// GranteeFromGroupKey reverses GroupKey.
func GranteeFromGroupKey(key string) Grantee {
	if name, ok := strings.CutPrefix(key, fakePlayerPrefix); ok {
		return FakePlayerGrantee(name)
	}
	return GroupGrantee(key)
}

// GroupKey is the name under which group and fake player grants are stored.
// Fake players carry a "#" prefix so both fit in one table.
func (g Grantee) GroupKey() string {
	if g.Kind == GranteeFakePlayer {
		return fakePlayerPrefix + g.Name
	}
	return g.Name
}

func (g Grantee) String() string {
	switch g.Kind {
	case GranteePlayer:
		if g.Player == uuid.Nil {
			return "public"
		}
		return g.Player.String()
	case GranteeGroup:
		return "[" + g.Name + "]"
	default:
		return g.GroupKey()
	}
}
