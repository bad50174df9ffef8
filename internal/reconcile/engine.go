// Package reconcile drives reconciliation passes: it compares the persisted
// group assignment of a stack instance against the assignment its group
// rules demand, rewrites it when needed, and publishes the result as an
// inventory.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stacklio/inventory-agent/internal/domain"
	"github.com/stacklio/inventory-agent/internal/inventory"
	"github.com/stacklio/inventory-agent/internal/partition"
	"github.com/stacklio/inventory-agent/internal/secrets"
	"github.com/stacklio/inventory-agent/internal/stackl"
	"github.com/stacklio/inventory-agent/internal/storage"
)

// Engine reconciles stack instances and records every pass.
type Engine struct {
	client   stackl.Client
	resolver secrets.Resolver
	store    storage.Storage
	logger   *zap.Logger

	// Passes for the same instance are serialized in-process; the remote
	// read-modify-write has no lock of its own, so cross-process exclusion
	// is the deployment's responsibility.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an engine.
func NewEngine(client stackl.Client, resolver secrets.Resolver, store storage.Storage, logger *zap.Logger) *Engine {
	return &Engine{
		client:   client,
		resolver: resolver,
		store:    store,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Reconcile runs one full pass for the named instance. The pass is
// all-or-nothing: any failure aborts it, nothing partial is published, and
// the recorded run carries the error. On success the returned run holds the
// rendered inventory.
func (e *Engine) Reconcile(ctx context.Context, instanceName string) (*inventory.Inventory, *domain.ReconcileRun, error) {
	unlock := e.lockInstance(instanceName)
	defer unlock()

	run := &domain.ReconcileRun{
		ID:        uuid.New().String(),
		Instance:  instanceName,
		Status:    domain.RunStatusPending,
		StartedAt: time.Now(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, nil, err
	}

	inv, updated, err := e.pass(ctx, instanceName)
	now := time.Now()
	run.FinishedAt = &now
	run.GroupsUpdated = updated

	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		if uerr := e.store.UpdateRun(ctx, run); uerr != nil {
			e.logger.Warn("failed to record run", zap.String("run", run.ID), zap.Error(uerr))
		}
		e.logger.Error("reconciliation failed",
			zap.String("instance", instanceName),
			zap.String("run", run.ID),
			zap.Error(err))
		return nil, run, err
	}

	rendered, err := inv.Render()
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		_ = e.store.UpdateRun(ctx, run)
		return nil, run, err
	}

	run.Status = domain.RunStatusSuccess
	run.Inventory = string(rendered)
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.logger.Warn("failed to record run", zap.String("run", run.ID), zap.Error(err))
	}

	e.logger.Info("reconciliation complete",
		zap.String("instance", instanceName),
		zap.String("run", run.ID),
		zap.Bool("groups_updated", updated))
	return inv, run, nil
}

// pass executes fetch, validate/partition, persist and publish for every
// service definition of the instance.
func (e *Engine) pass(ctx context.Context, instanceName string) (*inventory.Inventory, bool, error) {
	instance, err := e.client.GetStackInstance(ctx, instanceName)
	if err != nil {
		return nil, false, err
	}

	inv := inventory.New()
	updated := false

	for _, service := range sortedServiceNames(instance.Services) {
		for index, def := range instance.Services[service] {
			rules, grouped, err := def.InventoryGroups()
			if err != nil {
				return nil, updated, err
			}
			if grouped {
				changed, err := e.publishGrouped(ctx, instance, &def, rules, inv)
				if err != nil {
					return nil, updated || changed, err
				}
				updated = updated || changed
			} else if err := e.publishService(ctx, service, index, &def, inv); err != nil {
				return nil, updated, err
			}
		}
	}
	return inv, updated, nil
}

// publishGrouped handles a service that declares grouped provisioning:
// validate the persisted assignment, recompute and persist it if it no
// longer satisfies the rules, then publish every group with the service's
// provisioning parameters and resolved secrets as group variables.
func (e *Engine) publishGrouped(ctx context.Context, instance *domain.StackInstance, def *domain.ServiceDefinition, rules []domain.GroupRule, inv *inventory.Inventory) (bool, error) {
	changed := false
	if !partition.Validate(instance.Groups, rules) {
		pool := partition.NewPool(def.Hosts)
		groups, err := partition.Partition(pool, rules, def.InfrastructureTarget)
		if err != nil {
			return false, err
		}

		// The new assignment replaces the old one wholesale; it is
		// persisted before anything is published.
		instance.Groups = groups
		update := domain.StackInstanceUpdate{
			Name:              instance.Name,
			Groups:            groups,
			DisableInvocation: true,
		}
		if err := e.client.UpdateStackInstance(ctx, update); err != nil {
			return false, err
		}
		changed = true
		e.logger.Info("rewrote group assignment",
			zap.String("instance", instance.Name),
			zap.Int("groups", len(groups)),
			zap.Int("unassigned_hosts", pool.Len()))
	}

	secretVars, err := e.resolveSecrets(ctx, def)
	if err != nil {
		return changed, err
	}

	tags := make([]string, 0, len(instance.Groups))
	for tag := range instance.Groups {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		inv.AddGroup(tag)
		for _, entry := range instance.Groups[tag] {
			inv.AddHost(entry.Host, tag)
		}
		for key, value := range def.ProvisioningParameters {
			inv.SetVariable(tag, key, value)
		}
		for key, value := range secretVars {
			inv.SetVariable(tag, key, value)
		}
	}
	return changed, nil
}

// publishService handles a service without grouped provisioning: one group
// named after the service, its declared hosts (or a synthetic one), and its
// parameters and secrets as group variables.
func (e *Engine) publishService(ctx context.Context, service string, index int, def *domain.ServiceDefinition, inv *inventory.Inventory) error {
	inv.AddGroup(service)
	if len(def.Hosts) > 0 {
		for _, h := range def.Hosts {
			inv.AddHost(h, service)
		}
	} else {
		inv.AddHost(fmt.Sprintf("%s_%d", service, index), service)
	}

	inv.SetVariable(service, "infrastructure_target", def.InfrastructureTarget)
	for key, value := range def.ProvisioningParameters {
		inv.SetVariable(service, key, value)
	}

	secretVars, err := e.resolveSecrets(ctx, def)
	if err != nil {
		return err
	}
	for key, value := range secretVars {
		inv.SetVariable(service, key, value)
	}
	return nil
}

func (e *Engine) resolveSecrets(ctx context.Context, def *domain.ServiceDefinition) (map[string]string, error) {
	if len(def.Secrets) == 0 {
		return nil, nil
	}
	if e.resolver == nil {
		return nil, fmt.Errorf("service declares secrets but no secret handler is configured")
	}
	return e.resolver.Resolve(ctx, def.Secrets)
}

func (e *Engine) lockInstance(name string) func() {
	e.mu.Lock()
	l, ok := e.locks[name]
	if !ok {
		l = &sync.Mutex{}
		e.locks[name] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func sortedServiceNames(services map[string][]domain.ServiceDefinition) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
