// Package heartbeat processes periodic device reports.
//
// A heartbeat is a device telling the server "I'm alive", optionally
// carrying refreshed hardware/software/network info and a batch of
// buffered log entries. The pipeline normalises the report, applies it
// to the store in a single transaction, refreshes the status cache, and
// notifies watchers when the device's status actually changed.
//
// Heartbeats never auto-register devices: a report for an unknown ID is
// rejected so a misconfigured client cannot pollute the fleet.
package heartbeat
