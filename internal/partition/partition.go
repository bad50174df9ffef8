// Package partition computes the assignment of a service's hosts to named
// groups from declarative group rules, and validates an existing assignment
// so that reconciliation can skip recomputation when nothing changed.
package partition

import (
	"fmt"

	"github.com/stacklio/inventory-agent/internal/domain"
)

// Pool is an ordered host pool consumed destructively during one partitioning
// pass. It is owned exclusively by the caller of Partition; rules take strict
// prefixes from it, so concurrent access during a pass would corrupt the
// assignment.
type Pool struct {
	hosts []string
}

// NewPool copies hosts into a fresh pool. The input slice is not retained.
func NewPool(hosts []string) *Pool {
	cp := make([]string, len(hosts))
	copy(cp, hosts)
	return &Pool{hosts: cp}
}

// Len returns the number of unconsumed hosts.
func (p *Pool) Len() int { return len(p.hosts) }

// Remaining returns the unconsumed hosts in order.
func (p *Pool) Remaining() []string {
	out := make([]string, len(p.hosts))
	copy(out, p.hosts)
	return out
}

// take removes and returns the next n hosts from the front of the pool.
func (p *Pool) take(n int) ([]string, error) {
	if n > len(p.hosts) {
		return nil, fmt.Errorf("%w: need %d, have %d", domain.ErrInsufficientHosts, n, len(p.hosts))
	}
	taken := p.hosts[:n]
	p.hosts = p.hosts[n:]
	return taken, nil
}

// Partition assigns hosts from pool to groups according to rules.
//
// Rules and their tags are processed in the exact order supplied: for each
// tag, the next rule.Count hosts are taken from the front of the pool. No
// sorting or rebalancing happens, so two equivalent rule lists in different
// orders produce different assignments. On pool exhaustion the whole pass
// fails with domain.ErrInsufficientHosts and no assignment is returned.
func Partition(pool *Pool, rules []domain.GroupRule, target string) (domain.GroupAssignment, error) {
	groups := make(domain.GroupAssignment)
	for _, rule := range rules {
		for _, tag := range rule.Tags {
			hosts, err := pool.take(rule.Count)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", tag, err)
			}
			for _, h := range hosts {
				groups[tag] = append(groups[tag], domain.HostEntry{Host: h, Target: target})
			}
		}
	}
	return groups, nil
}

// Validate reports whether current already satisfies rules. Per-tag demand
// accumulates across rules; a tag is satisfied only when it is present with
// exactly that many entries. This is the idempotence gate: reconciliation
// recomputes and persists the assignment only when Validate returns false,
// and an assignment freshly produced by Partition always validates.
func Validate(current domain.GroupAssignment, rules []domain.GroupRule) bool {
	demand := make(map[string]int)
	for _, rule := range rules {
		for _, tag := range rule.Tags {
			demand[tag] += rule.Count
		}
	}

	for tag, count := range demand {
		entries, ok := current[tag]
		if !ok || len(entries) != count {
			return false
		}
	}
	return true
}
