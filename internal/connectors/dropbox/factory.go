package dropbox

import (
	"github.com/openindex-dev/openindex/internal/core/ports/driven"
)

// Factory builds Dropbox connectors for the registry.
type Factory struct {
	opts []Option
}

var _ driven.ConnectorFactory = (*Factory)(nil)

// NewFactory creates a factory applying opts to every connector.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// Create builds a connector.
func (f *Factory) Create() (driven.Connector, error) {
	return NewConnector(f.opts...), nil
}

// SupportsOAuth reports OAuth support.
func (f *Factory) SupportsOAuth() bool { return true }

// SupportsWebhooks reports webhook delivery support.
func (f *Factory) SupportsWebhooks() bool { return true }
