package telemetry

import "go.opentelemetry.io/otel/metric"

func Counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	return mustInstrument(meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit)))
}

func UpDownCounter(meter metric.Meter, name, desc, unit string) metric.Int64UpDownCounter {
	return mustInstrument(meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit)))
}

func Histogram(meter metric.Meter, name, desc, unit string) metric.Float64Histogram {
	return mustInstrument(meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit)))
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
