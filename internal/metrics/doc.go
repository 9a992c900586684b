// Package ranpingmetrics exposes Prometheus metrics for scenario runs and
// for the simulated testbed agent.
package ranpingmetrics
