package domain

import (
	"encoding/json"
	"fmt"
)

// InventoryGroupsParameter is the provisioning parameter under which a
// service declares its group rules. Its presence switches the service to
// grouped provisioning.
const InventoryGroupsParameter = "stackl_inventory_groups"

// ServiceDefinition is one deployment of a service inside a stack instance.
type ServiceDefinition struct {
	Hosts                  []string          `json:"hosts,omitempty"`
	ProvisioningParameters map[string]any    `json:"provisioning_parameters,omitempty"`
	Secrets                map[string]string `json:"secrets,omitempty"`
	InfrastructureTarget   string            `json:"infrastructure_target"`
}

// InventoryGroups extracts the group rules declared in the provisioning
// parameters. The second return is false when the service does not use
// grouped provisioning at all; a declared but malformed rule list is an
// error, not a fallback to the simple path.
func (s *ServiceDefinition) InventoryGroups() ([]GroupRule, bool, error) {
	raw, ok := s.ProvisioningParameters[InventoryGroupsParameter]
	if !ok {
		return nil, false, nil
	}

	// The parameter arrives as loosely typed JSON; a round-trip through
	// the codec gives it the concrete rule shape.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", ErrInvalidInput, InventoryGroupsParameter, err)
	}
	var rules []GroupRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", ErrInvalidInput, InventoryGroupsParameter, err)
	}
	return rules, true, nil
}

// StackInstance is the agent's view of a Stackl stack instance: its durable
// group assignment plus the service definitions that drive reconciliation.
type StackInstance struct {
	Name     string                         `json:"name"`
	Groups   GroupAssignment                `json:"groups,omitempty"`
	Services map[string][]ServiceDefinition `json:"services"`
}

// StackInstanceUpdate is a group-assignment write-back. DisableInvocation
// marks the update as metadata-only so the orchestrator does not re-run
// automation for it.
type StackInstanceUpdate struct {
	Name              string
	Groups            GroupAssignment
	DisableInvocation bool
}
