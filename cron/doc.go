// Package cron schedules SmartQueue's periodic maintenance: the sweep that
// expires called tokens whose holder never showed up, and estimator
// retraining from service history.
//
// Schedules use robfig/cron syntax, either 5-field expressions or
// descriptors:
//
//	s := cron.NewScheduler(clock, logger)
//	_ = s.Register(cron.TaskExpireOverdue, "@every 30s", eng.ExpireOverdue)
//	_ = s.Register(cron.TaskRetrain, "@every 15m", eng.RetrainTask)
//
// The scheduler plugs into [smartqueue.Runtime] and starts and stops with it.
package cron
