// Package pkresolver discovers and caches each table's partition-key
// attribute name, so routing can hash the right attribute out of an
// outgoing request without a blocking DescribeTable call on the
// request path.
package pkresolver

import (
	"context"
	"errors"
	"sync"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/internal/obstrace"
)

const (
	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 2000 * time.Millisecond
	maxRetries        = 3
	failureCooldown   = 5 * time.Minute
	discoveryQueueLen = 256
	shutdownGrace     = 5 * time.Second
)

// DescribeTableAPI is the subset of the DynamoDB client this package
// needs; production code passes the real *dynamodb.Client, tests pass
// a fake.
type DescribeTableAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type discoveryTask struct {
	table  string
	client DescribeTableAPI
}

// Resolver caches tableName -> partition key attribute name and runs
// discovery on a single-worker background queue so concurrent
// requests against an unknown table never produce a DescribeTable
// storm.
type Resolver struct {
	logger *zap.Logger
	tracer *obstrace.Tracer

	mu    sync.RWMutex
	cache map[string]string

	inProgressMu sync.Mutex
	inProgress   map[string]struct{}

	failed *lru.LRU[string, bool]

	queue  chan discoveryTask
	doneCh chan struct{}
	once   sync.Once
}

// New constructs a Resolver and starts its discovery worker. pkInfoPerTable
// pre-seeds the cache so those tables never trigger discovery.
func New(logger *zap.Logger, pkInfoPerTable map[string]string) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		logger:     logger,
		tracer:     obstrace.NewTracer("pkresolver"),
		cache:      make(map[string]string, len(pkInfoPerTable)),
		inProgress: make(map[string]struct{}),
		failed:     lru.NewLRU[string, bool](1024, nil, failureCooldown),
		queue:      make(chan discoveryTask, discoveryQueueLen),
		doneCh:     make(chan struct{}),
	}
	for table, name := range pkInfoPerTable {
		r.cache[table] = name
	}
	go r.worker()
	return r
}

// Get performs a non-blocking lookup of table's partition key name.
func (r *Resolver) Get(table string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.cache[table]
	return name, ok
}

// Register manually pre-seeds table's partition key name, skipping
// discovery entirely.
func (r *Resolver) Register(table, name string) {
	r.mu.Lock()
	r.cache[table] = name
	r.mu.Unlock()
}

// HasInfo reports whether table's partition key name is already known.
func (r *Resolver) HasInfo(table string) bool {
	_, ok := r.Get(table)
	return ok
}

// IsInFailureCooldown reports whether a prior permanent discovery
// failure for table is still within its cooldown window.
func (r *Resolver) IsInFailureCooldown(table string) bool {
	_, ok := r.failed.Get(table)
	return ok
}

// ClearFailure removes table's cooldown entry, if any, allowing the
// next TriggerDiscovery call to retry immediately.
func (r *Resolver) ClearFailure(table string) {
	r.failed.Remove(table)
}

// TriggerDiscovery enqueues an idempotent, asynchronous DescribeTable
// lookup for table. It is a no-op if the name is already cached,
// discovery is already in flight, or the table is in failure
// cooldown. It never blocks the caller and never returns an error —
// failed discovery degrades the request path to round-robin routing.
func (r *Resolver) TriggerDiscovery(table string, client DescribeTableAPI) {
	if r.HasInfo(table) || r.IsInFailureCooldown(table) {
		return
	}

	r.inProgressMu.Lock()
	if _, already := r.inProgress[table]; already {
		r.inProgressMu.Unlock()
		return
	}
	r.inProgress[table] = struct{}{}
	r.inProgressMu.Unlock()

	select {
	case r.queue <- discoveryTask{table: table, client: client}:
	default:
		// Queue saturated; drop the in-progress token so a later
		// request can retry rather than wedge the table forever.
		r.inProgressMu.Lock()
		delete(r.inProgress, table)
		r.inProgressMu.Unlock()
	}
}

// Shutdown stops accepting new discovery work and waits up to five
// seconds for the in-flight task to finish before returning.
func (r *Resolver) Shutdown(ctx context.Context) error {
	r.once.Do(func() { close(r.queue) })
	deadline := time.NewTimer(shutdownGrace)
	defer deadline.Stop()
	select {
	case <-r.doneCh:
		return nil
	case <-deadline.C:
		return errors.New("pkresolver: shutdown grace period elapsed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) worker() {
	defer close(r.doneCh)
	for task := range r.queue {
		r.runDiscovery(task)
	}
}

func (r *Resolver) runDiscovery(task discoveryTask) {
	defer func() {
		r.inProgressMu.Lock()
		delete(r.inProgress, task.table)
		r.inProgressMu.Unlock()
	}()

	// Re-check the cache: a concurrent Register may have raced us
	// between enqueue and this worker slot.
	if r.HasInfo(task.table) {
		return
	}

	var name string
	var permanent bool
	err := r.tracer.TraceDiscovery(context.Background(), task.table, func(ctx context.Context) error {
		var derr error
		name, permanent, derr = discoverWithRetry(ctx, task.client, task.table)
		return derr
	})
	if err != nil {
		if permanent {
			r.failed.Add(task.table, true)
			r.logger.Warn("partition key discovery failed permanently",
				zap.String("table", task.table), zap.Error(err))
		} else {
			r.logger.Debug("partition key discovery exhausted retries",
				zap.String("table", task.table), zap.Error(err))
		}
		return
	}

	r.Register(task.table, name)
}

// discoverWithRetry issues DescribeTable with exponential backoff
// (100ms initial, x2 each attempt, capped at 2s, 3 retries), stopping
// immediately on a permanently-classified error.
func discoverWithRetry(ctx context.Context, client DescribeTableAPI, table string) (pkName string, permanent bool, err error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.MaxInterval = maxBackoff
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries instead of wall time

	var lastPermanent bool
	operation := func() error {
		out, callErr := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &table})
		if callErr == nil {
			name, findErr := hashKeyAttributeName(out)
			if findErr != nil {
				lastPermanent = true
				return backoff.Permanent(findErr)
			}
			pkName = name
			return nil
		}
		if isPermanentDiscoveryError(callErr) {
			lastPermanent = true
			return backoff.Permanent(callErr)
		}
		return callErr
	}

	retryErr := backoff.Retry(operation, backoff.WithMaxRetries(bo, maxRetries))
	if retryErr != nil {
		return "", lastPermanent, retryErr
	}
	return pkName, false, nil
}

func hashKeyAttributeName(out *dynamodb.DescribeTableOutput) (string, error) {
	if out == nil || out.Table == nil {
		return "", errors.New("pkresolver: DescribeTable returned no table description")
	}
	for _, elem := range out.Table.KeySchema {
		if elem.KeyType == types.KeyTypeHash {
			return *elem.AttributeName, nil
		}
	}
	return "", errors.New("pkresolver: no HASH key in table schema")
}

// isPermanentDiscoveryError classifies a DescribeTable error per the
// non-retryable set: resource-not-found, 403, AccessDeniedException,
// ValidationException, and any 4xx other than 429.
func isPermanentDiscoveryError(err error) bool {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "ValidationException":
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 403 {
			return true
		}
		if status >= 400 && status < 500 && status != 429 {
			return true
		}
	}

	return false
}
