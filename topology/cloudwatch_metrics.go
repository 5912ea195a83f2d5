package topology

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// CloudWatchPublisherAPI is the subset of the CloudWatch client this
// package needs; production code passes the real *cloudwatch.Client,
// tests pass a fake.
type CloudWatchPublisherAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher periodically pushes the same active/quarantined
// node counts that topology.Metrics exposes to Prometheus into a
// CloudWatch namespace instead, for operators who run dashboards and
// alarms against CloudWatch rather than scraping /metrics.
type CloudWatchPublisher struct {
	client    CloudWatchPublisherAPI
	namespace string
	nodes     *LiveNodes
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

const defaultCloudWatchInterval = time.Minute

// NewCloudWatchPublisher builds a publisher for nodes' membership
// counts under namespace. A nil clock defaults to the real wall clock.
func NewCloudWatchPublisher(client CloudWatchPublisherAPI, namespace string, nodes *LiveNodes, interval time.Duration, clk clock.Clock, logger *zap.Logger) *CloudWatchPublisher {
	if interval <= 0 {
		interval = defaultCloudWatchInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		nodes:     nodes,
		interval:  interval,
		clock:     clk,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the publishing loop on its own goroutine.
func (p *CloudWatchPublisher) Start() {
	go p.loop()
}

// Close stops the publishing loop and waits for it to exit.
func (p *CloudWatchPublisher) Close(ctx context.Context) error {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *CloudWatchPublisher) loop() {
	defer close(p.doneCh)
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.publishOnce()
		case <-p.stopCh:
			return
		}
	}
}

func (p *CloudWatchPublisher) publishOnce() {
	snap := p.nodes.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &p.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: strPtr("ActiveNodes"),
				Unit:       cwtypes.StandardUnitCount,
				Value:      floatPtr(float64(len(snap.Active))),
			},
			{
				MetricName: strPtr("QuarantinedNodes"),
				Unit:       cwtypes.StandardUnitCount,
				Value:      floatPtr(float64(len(snap.Quarantined))),
			},
		},
	})
	if err != nil {
		p.logger.Warn("cloudwatch metric publish failed", zap.Error(err))
	}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
