package pkresolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type fakeDescribeTable struct {
	calls     atomic.Int64
	hashAttr  string
	err       error
	permanent bool
	delay     time.Duration
}

type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string      { return e.code }
func (e fakeAPIError) ErrorCode() string  { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func (f *fakeDescribeTable) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	name := f.hashAttr
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			KeySchema: []types.KeySchemaElement{
				{AttributeName: &name, KeyType: types.KeyTypeHash},
			},
		},
	}, nil
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestResolver_RegisterSkipsDiscovery(t *testing.T) {
	r := New(nil, nil)
	defer r.Shutdown(context.Background())

	r.Register("orders", "orderId")
	if !r.HasInfo("orders") {
		t.Fatal("expected registered table to have info")
	}
	name, ok := r.Get("orders")
	if !ok || name != "orderId" {
		t.Fatalf("expected orderId, got %q ok=%v", name, ok)
	}
}

func TestResolver_TriggerDiscoveryPopulatesCache(t *testing.T) {
	r := New(nil, nil)
	defer r.Shutdown(context.Background())

	client := &fakeDescribeTable{hashAttr: "userId"}
	r.TriggerDiscovery("users", client)

	waitForCondition(t, time.Second, func() bool { return r.HasInfo("users") })

	name, ok := r.Get("users")
	if !ok || name != "userId" {
		t.Fatalf("expected userId, got %q ok=%v", name, ok)
	}
}

func TestResolver_ConcurrentTriggerDiscoveryCallsOnce(t *testing.T) {
	r := New(nil, nil)
	defer r.Shutdown(context.Background())

	client := &fakeDescribeTable{hashAttr: "userId", delay: 20 * time.Millisecond}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.TriggerDiscovery("users", client)
		}()
	}
	wg.Wait()

	waitForCondition(t, time.Second, func() bool { return r.HasInfo("users") })

	if got := client.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one DescribeTable call, got %d", got)
	}
}

func TestResolver_PermanentFailureEntersCooldown(t *testing.T) {
	r := New(nil, nil)
	defer r.Shutdown(context.Background())

	client := &fakeDescribeTable{err: fakeAPIError{code: "AccessDeniedException"}}
	r.TriggerDiscovery("secret", client)

	waitForCondition(t, time.Second, func() bool { return r.IsInFailureCooldown("secret") })

	if r.HasInfo("secret") {
		t.Fatal("expected no cached name after permanent failure")
	}

	r.TriggerDiscovery("secret", client)
	time.Sleep(50 * time.Millisecond)
	if got := client.calls.Load(); got != 1 {
		t.Fatalf("expected no retry during cooldown, got %d calls", got)
	}

	r.ClearFailure("secret")
	if r.IsInFailureCooldown("secret") {
		t.Fatal("expected cooldown cleared")
	}
}
