// Package infra groups the adapters behind the core interfaces: the paho
// MQTT client, the telemetry HTTP gateway, the reachability prober, the
// PostgreSQL and SQLite stores, metrics sinks, Sentry and the HTTP API.
package infra
