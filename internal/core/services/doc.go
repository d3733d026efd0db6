// Package services implements the driving port interfaces and the managed
// object graph the roster is stored through.
//
//   - StoreCoordinator: serialises writes to one RecordStore and resolves
//     conflicts with a merge policy
//   - ManagedContext, ManagedObject: working sets of tracked objects with
//     inverse-maintaining relationships, child contexts and change propagation
//   - RosterService, SettingsService: driving port implementations
//
// Services depend only on domain, schema and the ports. Adapters are wired
// by the persistence package and cmd/roster.
package services
