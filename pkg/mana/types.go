package mana

import (
	"fmt"
	"time"
)

// Scope identifies one mana pool: an account (usually an executor identity)
// within a community. The empty community is valid and means the global
// scope.
type Scope struct {
	Account   string `json:"Account"`
	Community string `json:"Community,omitempty"`
}

func (s Scope) String() string {
	if s.Community == "" {
		return s.Account
	}
	return s.Community + "/" + s.Account
}

// Pool is a regenerating balance. Regeneration is applied lazily whenever
// the pool is read or written, so no background ticking is required for
// correctness.
type Pool struct {
	Current     uint64    `json:"Current"`
	Max         uint64    `json:"Max"`
	RegenPerSec float64   `json:"RegenPerSec"`
	LastUpdated time.Time `json:"LastUpdated"`
}

// PoolConfig is the shape newly created pools take.
type PoolConfig struct {
	Initial     uint64
	Max         uint64
	RegenPerSec float64
}

// DefaultPoolConfig matches a modest participant: a day of steady work
// before the pool drains at one unit per second.
var DefaultPoolConfig = PoolConfig{
	Initial:     1000,
	Max:         1000,
	RegenPerSec: 1,
}

// ErrInsufficientMana reports a failed spend. The pool is left untouched.
type ErrInsufficientMana struct {
	Scope     Scope
	Requested uint64
	Available uint64
}

func NewErrInsufficientMana(scope Scope, requested, available uint64) ErrInsufficientMana {
	return ErrInsufficientMana{Scope: scope, Requested: requested, Available: available}
}

func (e ErrInsufficientMana) Error() string {
	return fmt.Sprintf("insufficient mana in %s: requested %d, available %d",
		e.Scope, e.Requested, e.Available)
}

// ErrPoolNotFound is returned by operations that require an existing pool.
type ErrPoolNotFound struct {
	Scope Scope
}

func NewErrPoolNotFound(scope Scope) ErrPoolNotFound {
	return ErrPoolNotFound{Scope: scope}
}

func (e ErrPoolNotFound) Error() string {
	return "no mana pool for scope: " + e.Scope.String()
}
