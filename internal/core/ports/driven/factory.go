package driven

// ConnectorFactory creates connectors for one provider kind and
// advertises the provider's optional capabilities.
type ConnectorFactory interface {
	// Create returns a ready connector.
	Create() (Connector, error)

	// SupportsOAuth reports whether the provider uses OAuth
	// authorization-code flow.
	SupportsOAuth() bool

	// SupportsWebhooks reports whether Create's connectors also
	// implement WebhookConnector.
	SupportsWebhooks() bool
}
