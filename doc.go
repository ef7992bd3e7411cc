// Package tempo provides a durable job scheduling engine for Go. It accepts
// units of work tagged with a name, payload, target execution time, priority,
// and retry policy, persists them through a pluggable store, and dispatches
// them to registered handlers at or after their scheduled time under a global
// concurrency cap, per-job timeouts, and bounded automatic retries. Recurring
// jobs driven by a cron-like expression are materialized as concrete job
// instances ahead of their run time.
//
// Tempo is designed as a library, not a service. Import it, configure a
// store, register handlers, and call Initialize.
//
// # Quick Start
//
//	s, err := tempo.New(
//	    tempo.WithStore(memory.New()),
//	    tempo.WithMaxConcurrentJobs(20),
//	)
//	eng, err := engine.Build(s)
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail))
//	err = eng.Initialize(ctx)
//
// # Architecture
//
// Tempo follows a composable store pattern: the job and recurring subsystems
// each define their own store interface, and a single backend implements
// both. Backends are provided for memory, MongoDB, Redis, and PostgreSQL.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package tempo
