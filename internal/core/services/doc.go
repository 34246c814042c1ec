// Package services implements the driving ports: the sync
// orchestrator, account management, and search. Services wire the
// connector registry, stores, cache, and realtime index together and
// own the cross-cutting policies (circuit breaking, retries, account
// locking) that keep provider failures contained.
package services
