// Package interfaces lists the abstractions the services depend on and
// holds compile-time checks that the concrete types satisfy them.
//
// # Storage
//
//   - storage.Storage: upload, delete and resolve files under uploads/
//     (internal/storage/files.go). FileStorage is the only implementation;
//     catalog services take the interface so tests can stub it.
//   - http.Pinger: database liveness for /health (internal/http/health.go).
//
// # External Services
//
//   - countries.Fetcher: one uncached call to the countries API.
//   - countries.Lister: country options for publisher forms, empty on failure.
//   - countries.Cache: RedisCache when REDIS_ADDR is set, MemoryCache otherwise.
//
// # Background Tasks
//
//   - tasks.OverdueExpirer: closes overdue borrows (borrowing.Service).
//   - tasks.CountryRefresher: refetches the country list into the cache.
//   - tasks.AuditPruner: drops audit events past their retention (audit.Service).
//
// # Adding a New Background Task
//
//  1. Define the task type and its processor in internal/tasks/
//
//     type PurgeOrphanFilesTask struct{}
//
//     func (t PurgeOrphanFilesTask) Config() backlite.QueueConfig {
//         return backlite.QueueConfig{Name: "purge_orphan_files", MaxAttempts: 3}
//     }
//
//  2. Register the queue in entrypoint.Run next to the sweep and warm-up queues.
//
//  3. Enqueue it with taskClient.Add(tasks.PurgeOrphanFilesTask{}).Save().
package interfaces
