/*
Package observability provides tools for monitoring the coordinator.

It turns the coordinator lifecycle hooks into Prometheus metrics and structured log lines.
Both are plain domain.LifecycleHooks and can be combined with LifecycleHooks.Merge.
*/
package observability
