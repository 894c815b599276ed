/*
Package health provides the HTTP health-probe checker the worker scheduler
uses against a pod's /healthz endpoint before attempting a reservation.
A failed probe causes the worker to prune the pod from both its
descriptor and the active-pods set (pkg/coordinator.RemoveGhost).
*/
package health
