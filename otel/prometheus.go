package otel

import (
	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusMeterProvider returns an SDK meter provider whose instruments
// are collected into reg, so dispense metrics are scraped alongside the HTTP
// metrics. The caller owns Shutdown.
func NewPrometheusMeterProvider(reg prometheus.Registerer, serviceName string) (*sdkmetric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	if serviceName == "" {
		serviceName = "pez"
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(serviceResource(serviceName)),
	), nil
}
