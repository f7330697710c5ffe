package adapters

import (
	"fmt"
	"sync"
	"time"

	"github.com/otcheredev/dicom-autosync/internal/models"
)

// FactoryOptions are shared by every adapter the factory builds
type FactoryOptions struct {
	CallingAE    string
	QueryTimeout time.Duration
	MoveTimeout  time.Duration
}

// AdapterFactory manages adapter instances
type AdapterFactory struct {
	mu       sync.RWMutex
	opts     FactoryOptions
	adapters map[string]Directory // keyed by node key
}

// NewAdapterFactory creates a new adapter factory
func NewAdapterFactory(opts FactoryOptions) *AdapterFactory {
	return &AdapterFactory{
		opts:     opts,
		adapters: make(map[string]Directory),
	}
}

// GetAdapter gets or creates the adapter for a node. A non-nil moveTo enables C-MOVE into that destination.
func (f *AdapterFactory) GetAdapter(node models.NodeConfig, moveTo *models.Destination) (Directory, error) {
	key := nodeKey(node)

	f.mu.RLock()
	adapter, exists := f.adapters[key]
	f.mu.RUnlock()

	if exists {
		return adapter, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock
	if adapter, exists := f.adapters[key]; exists {
		return adapter, nil
	}

	var err error
	switch node.Type {
	case models.NodeTypeDIMSE, "":
		adapter, err = NewDIMSEAdapter(node, DIMSEOptions{
			CallingAE:       f.opts.CallingAE,
			FindTimeout:     seconds(f.opts.QueryTimeout),
			MoveTimeout:     seconds(f.opts.MoveTimeout),
			MoveDestination: moveTo,
		})
	case models.NodeTypeDICOMWeb:
		adapter, err = NewDICOMWebAdapter(node, f.opts.QueryTimeout)
	default:
		return nil, &models.ConfigurationError{Field: key + ".type", Reason: fmt.Sprintf("unsupported node type %q", node.Type)}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	f.adapters[key] = adapter
	return adapter, nil
}

// GetMover returns the adapter for node as a Mover
func (f *AdapterFactory) GetMover(node models.NodeConfig, moveTo models.Destination) (Mover, error) {
	adapter, err := f.GetAdapter(node, &moveTo)
	if err != nil {
		return nil, err
	}
	mover, ok := adapter.(Mover)
	if !ok {
		return nil, &models.ConfigurationError{
			Field:  nodeKey(node) + ".type",
			Reason: fmt.Sprintf("%s nodes cannot move series; the remote must be a DIMSE node", node.Type),
		}
	}
	return mover, nil
}

// CloseAll closes all adapters
func (f *AdapterFactory) CloseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errors []error
	for key, adapter := range f.adapters {
		if err := adapter.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close adapter for node %s: %w", key, err))
		}
		delete(f.adapters, key)
	}

	if len(errors) > 0 {
		return fmt.Errorf("encountered %d errors while closing adapters", len(errors))
	}

	return nil
}

func nodeKey(node models.NodeConfig) string {
	if node.Key != "" {
		return node.Key
	}
	return node.Name
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Round(time.Second) / time.Second)
}
