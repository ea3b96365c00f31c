// Package store persists client policies for the control plane and hands
// them to the gateway at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xizzxy/atlas/internal/limiter"
)

var ErrNotFound = errors.New("policy not found")

// Policy is a stored client policy.
type Policy struct {
	Client string `json:"client"`
	limiter.Config
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

type PolicyStore interface {
	// Put creates or replaces the policy for p.Client and returns it with
	// its timestamps filled in.
	Put(ctx context.Context, p Policy) (Policy, error)
	Get(ctx context.Context, client string) (Policy, error)
	Delete(ctx context.Context, client string) error
	List(ctx context.Context) ([]Policy, error)
	Ping(ctx context.Context) error
	Close() error
}

// LoadPolicies reads every stored policy into a validated table.
func LoadPolicies(ctx context.Context, s PolicyStore) (limiter.Policies, error) {
	stored, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}

	policies := make(limiter.Policies, len(stored))
	for _, p := range stored {
		policies[p.Client] = p.Config
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	return policies, nil
}

func sortPolicies(ps []Policy) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Client < ps[j].Client })
}
