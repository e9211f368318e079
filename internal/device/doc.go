// Package device is the fleet state core: the device data model, the pure
// status state machine, the SQLite-backed durable store, the fast-path
// status cache, and the staleness sweeper.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────────┐
//	│                         Fleet State Core                               │
//	│                                                                        │
//	│  ┌────────────────┐   ┌──────────────────┐   ┌────────────────────┐   │
//	│  │ State Machine  │   │    Repository    │   │    StatusCache     │   │
//	│  │(statemachine.go)│──▶│ (repository.go)  │   │  (statuscache.go)  │   │
//	│  │                │   │                  │   │                    │   │
//	│  │ • Transition() │   │ • SQLite queries │   │ • TTL entries      │   │
//	│  │ • pure logic   │   │ • heartbeat tx   │   │ • best-effort only │   │
//	│  └────────────────┘   │ • cond. demotion │   └────────────────────┘   │
//	│                       └──────────────────┘                            │
//	│  ┌────────────────┐            │                                      │
//	│  │    Sweeper     │────────────┘                                      │
//	│  │  (sweeper.go)  │  periodic stale demotion, race-safe               │
//	│  └────────────────┘                                                   │
//	└───────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Device: a managed kiosk/tablet/display/signage unit tracked by id
//   - Status: offline | online | maintenance | error
//   - Repository: durable store operations, including the transactional
//     heartbeat apply and the conditional offline demotion
//   - StatusCache: fast-path TTL cache of last-known status, never
//     authoritative
//   - Sweeper: background task applying the staleness transition
//
// # Consistency model
//
// The repository is the single source of truth. The heartbeat write path
// (status transition, info blob replacement, timestamp refresh, log inserts)
// commits as one transaction. The sweeper's demotion is a conditional update
// keyed on device id, current status, and last_heartbeat, so a heartbeat
// racing a sweep for the same device always wins. The StatusCache is
// strictly derived and overwritable; losing it costs a repository read,
// nothing more.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Per-device linearisation
// is provided by the repository's conditional updates, not by locks.
package device
