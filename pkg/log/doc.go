/*
Package log provides structured logging built on zerolog: a global
logger configured once via Init, plus component-scoped child loggers
(WithComponent, WithPodID, WithPath) used throughout the pod, worker,
and origin processes.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	podLog := log.WithComponent("pod")
	podLog.Info().Str("pod_id", podID).Msg("pod starting")
*/
package log
