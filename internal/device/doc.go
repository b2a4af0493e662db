// Package device keeps the mapper's per-device bookkeeping outside the
// synchronisation engine.
//
//   - StatusRegistry: reachability (online/offline) per device, fed by the
//     result of every poll cycle.
//   - SQLitePropertyHistoryRepository: every published property value in
//     the property_history table, queried by the status API and pruned by
//     RunPruner according to database.history_retention.
//
// Both are optional collaborators of the bridge. The mapper runs without
// them when the database is disabled.
package device
