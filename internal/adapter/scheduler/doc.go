// Package scheduler triggers jobs on cron schedules.
//
// Schedules use the standard 5-field cron syntax (minute, hour,
// day-of-month, month, day-of-week) plus descriptors such as "@weekly"
// and "@every 5m", evaluated in a configurable timezone. Malformed
// expressions are rejected at registration.
//
// Registered jobs can carry a timeout (default: none), an overlap
// policy for fires that arrive while the previous run is active, and
// observability hooks:
//
//	s := scheduler.New(scheduler.Config{Logger: log, Location: loc})
//	id, err := s.AddJob("0 8 * * 1", runReport, scheduler.JobOptions{
//		Name:          "weekly-report",
//		OverlapPolicy: scheduler.SkipIfRunning,
//	})
//	s.Start()
//	defer s.Stop()
//
// Panics inside jobs are recovered and reported through the error
// hook; a failing job never stops the scheduler.
package scheduler
