package groupbuy

import "context"

// Recorder receives group-buy business measurements. The telemetry package
// provides the OpenTelemetry implementation.
type Recorder interface {
	RecordJoin(ctx context.Context, policy string, qty int)
	RecordLeave(ctx context.Context)
	RecordTransition(ctx context.Context, from, to string)
	RecordReminder(ctx context.Context, window string)
	RecordExpiry(ctx context.Context)
	StreamOpened(ctx context.Context)
	StreamClosed(ctx context.Context)
}

type noopRecorder struct{}

func (noopRecorder) RecordJoin(context.Context, string, int)          {}
func (noopRecorder) RecordLeave(context.Context)                      {}
func (noopRecorder) RecordTransition(context.Context, string, string) {}
func (noopRecorder) RecordReminder(context.Context, string)           {}
func (noopRecorder) RecordExpiry(context.Context)                     {}
func (noopRecorder) StreamOpened(context.Context)                     {}
func (noopRecorder) StreamClosed(context.Context)                     {}
