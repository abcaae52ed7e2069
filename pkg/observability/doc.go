/*
Package observability turns engine and task lifecycle events into Prometheus metrics.

Metrics are registered on a private registry so several engines can live in one process;
Handler serves them in the Prometheus exposition format.

	m := observability.NewMetrics()
	sc, _ := stagecraft.New(dir, stagecraft.WithLifecycleHooks(m.Hooks()))
	http.Handle("/metrics", m.Handler())
*/
package observability
