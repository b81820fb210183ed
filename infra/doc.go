// Package infra contains technical adapters: the MQTT client, metrics
// exporters, snapshot stores, error monitoring and logging. These packages
// depend only on the interfaces defined in the core packages.
package infra
