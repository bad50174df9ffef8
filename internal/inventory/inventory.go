// Package inventory accumulates groups, hosts and variables during a
// reconciliation pass and renders them as an automation inventory.
package inventory

import (
	"encoding/json"
	"sort"
)

// Builder is the sink the reconciliation engine publishes into.
type Builder interface {
	AddGroup(name string)
	AddHost(host, group string)
	SetVariable(group, key string, value any)
}

// Group is one inventory group: member hosts in insertion order plus group
// variables.
type Group struct {
	Hosts []string       `json:"hosts"`
	Vars  map[string]any `json:"vars,omitempty"`
}

// Inventory is the in-memory Builder implementation.
type Inventory struct {
	groups map[string]*Group
}

// Ensure Inventory implements Builder.
var _ Builder = (*Inventory)(nil)

// New creates an empty inventory.
func New() *Inventory {
	return &Inventory{groups: make(map[string]*Group)}
}

// AddGroup registers a group. Adding an existing group is a no-op.
func (i *Inventory) AddGroup(name string) {
	if _, ok := i.groups[name]; !ok {
		i.groups[name] = &Group{Vars: make(map[string]any)}
	}
}

// AddHost appends host to group, creating the group if needed. Duplicate
// hosts within a group are kept out.
func (i *Inventory) AddHost(host, group string) {
	i.AddGroup(group)
	g := i.groups[group]
	for _, h := range g.Hosts {
		if h == host {
			return
		}
	}
	g.Hosts = append(g.Hosts, host)
}

// SetVariable sets a group variable, creating the group if needed.
func (i *Inventory) SetVariable(group, key string, value any) {
	i.AddGroup(group)
	i.groups[group].Vars[key] = value
}

// Group returns the named group, or nil.
func (i *Inventory) Group(name string) *Group {
	return i.groups[name]
}

// GroupNames returns all group names in sorted order.
func (i *Inventory) GroupNames() []string {
	names := make([]string, 0, len(i.groups))
	for name := range i.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render produces the inventory in the shape automation tooling consumes
// from dynamic sources: one object per group with hosts and vars, plus the
// _meta envelope. Output is deterministic for identical contents.
func (i *Inventory) Render() ([]byte, error) {
	doc := make(map[string]any, len(i.groups)+1)
	for name, g := range i.groups {
		hosts := g.Hosts
		if hosts == nil {
			hosts = []string{}
		}
		doc[name] = map[string]any{
			"hosts": hosts,
			"vars":  g.Vars,
		}
	}
	doc["_meta"] = map[string]any{
		"hostvars": map[string]any{},
	}
	return json.Marshal(doc)
}
