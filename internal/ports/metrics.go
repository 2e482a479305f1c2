package ports

// Metrics records engine activity for monitoring.
type Metrics interface {
	RecordCycle(seconds float64, bindings, signals int)
	RecordSignal(source, priority string)
	RecordDelivery(kind, outcome string)
	RecordExecution(outcome string)
	RecordError(kind string)
}
