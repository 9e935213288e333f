package pool

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// RoleAdministrator may stage and adjust the next epoch and manage roles.
	RoleAdministrator = "pool.admin"
	// RoleDepositor may deposit the promised epoch reward.
	RoleDepositor = "pool.depositor"
)

// Authority answers capability checks for a caller.
type Authority interface {
	HasRole(role string, addr []byte) bool
}

// RoleRegistry mutates role membership. It is optional; engines without one
// reject GrantRole and RevokeRole.
type RoleRegistry interface {
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
}

// AuthorityFunc adapts a predicate to the Authority interface.
type AuthorityFunc func(role string, addr []byte) bool

// HasRole implements Authority.
func (f AuthorityFunc) HasRole(role string, addr []byte) bool {
	if f == nil {
		return false
	}
	return f(role, addr)
}

// StaticAuthority is an in-memory role table. The zero value grants nothing
// and rejects grants with ErrRolesImmutable.
type StaticAuthority map[string]map[common.Address]struct{}

// NewStaticAuthority builds a role table from role -> members.
func NewStaticAuthority(members map[string][]common.Address) StaticAuthority {
	out := make(StaticAuthority, len(members))
	for role, addrs := range members {
		set := make(map[common.Address]struct{}, len(addrs))
		for _, addr := range addrs {
			set[addr] = struct{}{}
		}
		out[role] = set
	}
	return out
}

// HasRole implements Authority.
func (s StaticAuthority) HasRole(role string, addr []byte) bool {
	members, ok := s[strings.TrimSpace(role)]
	if !ok || len(addr) != common.AddressLength {
		return false
	}
	_, ok = members[common.BytesToAddress(addr)]
	return ok
}

// SetRole implements RoleRegistry.
func (s StaticAuthority) SetRole(role string, addr []byte) error {
	if s == nil {
		return ErrRolesImmutable
	}
	role = strings.TrimSpace(role)
	members, ok := s[role]
	if !ok {
		members = make(map[common.Address]struct{})
		s[role] = members
	}
	members[common.BytesToAddress(addr)] = struct{}{}
	return nil
}

// RemoveRole implements RoleRegistry.
func (s StaticAuthority) RemoveRole(role string, addr []byte) error {
	if members, ok := s[strings.TrimSpace(role)]; ok {
		delete(members, common.BytesToAddress(addr))
	}
	return nil
}

// KnownRole reports whether role is one of the pool roles.
func KnownRole(role string) bool {
	switch strings.TrimSpace(role) {
	case RoleAdministrator, RoleDepositor:
		return true
	default:
		return false
	}
}
