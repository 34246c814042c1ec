package localfile

import (
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// Factory builds local-file connectors for the registry.
type Factory struct{}

var _ driven.ConnectorFactory = (*Factory)(nil)

// NewFactory creates a factory.
func NewFactory() *Factory { return &Factory{} }

// Create builds a connector.
func (f *Factory) Create() (driven.Connector, error) {
	return NewConnector(), nil
}

// SupportsOAuth reports OAuth support.
func (f *Factory) SupportsOAuth() bool { return false }

// SupportsWebhooks reports push support. Live changes come from the
// filesystem watcher instead.
func (f *Factory) SupportsWebhooks() bool { return false }
