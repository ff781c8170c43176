package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtgturn/turnserver/internal/apperr"
)

func TestRunSerializesSameSession(t *testing.T) {
	c := New(WithWaitTimeout(time.Second))
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(context.Background(), "S1", func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&maxActive)
					if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent ops on one session = %d, want 1", maxActive)
	}
}

func TestRunParallelAcrossSessions(t *testing.T) {
	c := New(WithWaitTimeout(time.Second))
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < 5; i++ {
		wg.Add(1)
		id := i
		go func() {
			defer wg.Done()
			c.Run(context.Background(), "SESSION-"+string(rune('A'+id)), func(ctx context.Context) (interface{}, error) {
				time.Sleep(50 * time.Millisecond)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if time.Since(start) > 200*time.Millisecond {
		t.Errorf("distinct sessions did not run in parallel, took %v", time.Since(start))
	}
}

func TestRunTooBusy(t *testing.T) {
	c := New(WithWaitTimeout(2*time.Second), WithPendingCap(2))
	release := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(context.Background(), "BUSY", func(ctx context.Context) (interface{}, error) {
			<-release
			return nil, nil
		})
	}()

	// Give the first op time to acquire the section.
	time.Sleep(20 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(context.Background(), "BUSY", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := c.Run(context.Background(), "BUSY", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if !apperr.Is(err, apperr.KindBusy) {
		t.Errorf("expected Busy error, got %v", err)
	}

	close(release)
	wg.Wait()
}
