// Package obstrace wraps X-Ray segment management for the poller and
// discovery background tasks, so a poll or a DescribeTable round trip
// shows up in a trace the same way a user-facing request would.
package obstrace

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer names segments under a fixed component prefix.
type Tracer struct {
	component string
}

// NewTracer scopes a Tracer to one component name, e.g. "topology" or
// "pkresolver".
func NewTracer(component string) *Tracer {
	return &Tracer{component: component}
}

// TracePoll wraps one /localnodes poll attempt in its own subsegment,
// recording the error (if any) before returning it unchanged.
func (t *Tracer) TracePoll(ctx context.Context, target string, fn func(context.Context) error) error {
	ctx, seg := xray.BeginSubsegment(ctx, fmt.Sprintf("%s.poll", t.component))
	defer seg.Close(nil)
	seg.AddAnnotation("target", target)

	err := fn(ctx)
	if err != nil {
		seg.AddError(err)
	}
	return err
}

// TraceDiscovery wraps one DescribeTable discovery attempt.
func (t *Tracer) TraceDiscovery(ctx context.Context, table string, fn func(context.Context) error) error {
	ctx, seg := xray.BeginSubsegment(ctx, fmt.Sprintf("%s.discover", t.component))
	defer seg.Close(nil)
	seg.AddAnnotation("table", table)

	err := fn(ctx)
	if err != nil {
		seg.AddError(err)
	}
	return err
}

// RecordError attaches err to the current segment, if any is active.
func (t *Tracer) RecordError(ctx context.Context, err error) {
	if seg := xray.GetSegment(ctx); seg != nil {
		seg.AddError(err)
	}
}
