package stackl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/stacklio/inventory-agent/internal/domain"
)

// FileShim is a file-backed implementation for testing and local
// development. The file holds a JSON object mapping instance names to stack
// instances; group updates are written back in place.
type FileShim struct {
	filePath string

	mu     sync.RWMutex
	writes int
}

// Ensure FileShim implements Client.
var _ Client = (*FileShim)(nil)

// NewFileShim creates a shim backed by filePath.
func NewFileShim(filePath string) *FileShim {
	return &FileShim{filePath: filePath}
}

// GetStackInstance reads the named instance from the file.
func (f *FileShim) GetStackInstance(ctx context.Context, name string) (*domain.StackInstance, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	instances, err := f.load()
	if err != nil {
		return nil, err
	}
	instance, ok := instances[name]
	if !ok {
		return nil, fmt.Errorf("stack instance %q: %w", name, domain.ErrNotFound)
	}
	if instance.Name == "" {
		instance.Name = name
	}
	return &instance, nil
}

// UpdateStackInstance replaces the instance's group assignment in the file.
func (f *FileShim) UpdateStackInstance(ctx context.Context, update domain.StackInstanceUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	instances, err := f.load()
	if err != nil {
		return err
	}
	instance, ok := instances[update.Name]
	if !ok {
		return fmt.Errorf("stack instance %q: %w", update.Name, domain.ErrNotFound)
	}
	instance.Groups = update.Groups
	instances[update.Name] = instance

	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding shim file: %v", domain.ErrRemoteState, err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("%w: writing shim file: %v", domain.ErrRemoteState, err)
	}
	f.writes++
	return nil
}

// Writes returns how many updates were persisted. Used by tests to assert
// idempotence.
func (f *FileShim) Writes() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.writes
}

func (f *FileShim) load() (map[string]domain.StackInstance, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.StackInstance{}, nil
		}
		return nil, fmt.Errorf("%w: reading shim file: %v", domain.ErrRemoteState, err)
	}

	var instances map[string]domain.StackInstance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("%w: parsing shim file: %v", domain.ErrRemoteState, err)
	}
	return instances, nil
}
