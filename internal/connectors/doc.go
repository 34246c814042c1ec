// Package connectors provides the provider connector implementations and
// the infrastructure they share: the OAuth authorization-code helper,
// provider HTTP error mapping, rate limiting, listing filters, the common
// sync pipeline, and the factory registry.
//
// Each provider lives in its own subpackage and implements
// driven.Connector. Connectors are stateless; per-account state
// (credentials, cursors, status) travels in the ConnectedAccount.
package connectors
