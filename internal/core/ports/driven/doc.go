// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Connector: Fetches documents from a provider
//   - ConnectorFactory: Creates connectors and advertises capabilities
//   - AccountStore: Connected account persistence
//   - DocumentStore: Document metadata persistence
//   - EmbeddingQueue: Tracks documents awaiting embedding
//   - FullTextIndex: Full-text backend behind the real-time index
//
// # Optional Interfaces
//
//   - WebhookConnector: Provider push notifications
//   - OrdinalStore: Durable incremental-driver positions
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
