// Package engine wires all tempo subsystems together and provides the
// primary application-level API for registering and scheduling work.
//
// The engine package exists to break a fundamental import cycle: the root
// tempo package defines Entity (imported by job and recurring) and
// therefore cannot import those packages back. Engine sits above all
// subsystem packages and below the application layer.
//
// # Building an Engine
//
//	s, err := tempo.New(
//	    tempo.WithStore(pgStore),
//	    tempo.WithMaxConcurrentJobs(20),
//	    tempo.WithTickSchedule("@every 5s"),
//	)
//
//	eng, err := engine.Build(s,
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithBackoff(backoff.Exponential(time.Second, time.Minute)),
//	    engine.WithRateLimit(50, 10),
//	)
//
//	if err := eng.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(ctx)
//
// # Registering Work
//
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail))
//
// # Scheduling Jobs
//
//	engine.Schedule(ctx, eng, "send-email", EmailInput{To: "user@example.com"}, time.Time{})
//
//	// At a later time, with options
//	engine.Schedule(ctx, eng, "send-email", input, time.Now().Add(5*time.Minute),
//	    job.WithPriority(job.PriorityHigh),
//	    job.WithMaxRetries(5),
//	)
//
//	// On a recurring cadence
//	engine.ScheduleRecurring(ctx, eng, "daily-report", ReportInput{}, "0 0 * * *")
//
// # Options
//
//   - [WithMiddleware] — add a middleware to the execution chain
//   - [WithBackoff] — override per-job retry delays with a strategy
//   - [WithFullCron] — evaluate arbitrary cron expressions
//   - [WithRateLimit] — throttle job launches
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
