// Package telemetry configures OpenTelemetry metric and trace providers.
//
// With an OTLP endpoint, Setup installs SDK providers that export over gRPC
// and registers them globally together with the W3C trace context
// propagator. Without one it hands out no-op providers, so instrumented
// packages such as tenantdb can always be given a MeterProvider.
package telemetry
