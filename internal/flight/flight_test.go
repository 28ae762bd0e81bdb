package flight

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForWaiters(t *testing.T, g *Group[string], key string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if g.Waiters(key) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d waiters on %s (have %d)", n, key, g.Waiters(key))
}

// blockingRun returns a run function that counts starts and returns "done"
// when release closes or ctx.Err() when its context is cancelled.
func blockingRun(starts *atomic.Int32, started chan<- struct{}, release <-chan struct{}) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		starts.Add(1)
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func TestDoSharesOneRun(t *testing.T) {
	var g Group[string]
	var shares atomic.Int32
	g.OnShare = func(string) { shares.Add(1) }

	var starts atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	run := blockingRun(&starts, started, release)

	const callers = 4
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, shared, err := g.Do(context.Background(), "k", run)
			if err != nil || !shared {
				t.Errorf("Do() = %q, shared=%v, err=%v", v, shared, err)
			}
			results <- v
		}()
	}

	<-started
	waitForWaiters(t, &g, "k", callers)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "done" {
			t.Errorf("result = %q, want done", v)
		}
	}
	if n := starts.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
	if n := shares.Load(); n != callers-1 {
		t.Errorf("OnShare calls = %d, want %d", n, callers-1)
	}
	if g.InFlight("k") {
		t.Error("key still in flight after every caller returned")
	}
}

func TestDoRunOutlivesStartingCaller(t *testing.T) {
	var g Group[string]
	var starts atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	run := blockingRun(&starts, started, release)

	// a starts the run and leaves; b joined before that and must still get
	// the result of the same run.
	aCtx, aLeave := context.WithCancel(context.Background())
	aErr := make(chan error, 1)
	go func() {
		_, _, err := g.Do(aCtx, "k", run)
		aErr <- err
	}()
	<-started

	bResult := make(chan string, 1)
	go func() {
		v, _, err := g.Do(context.Background(), "k", run)
		if err != nil {
			t.Errorf("live caller err = %v", err)
		}
		bResult <- v
	}()
	waitForWaiters(t, &g, "k", 2)

	aLeave()
	if err := <-aErr; !errors.Is(err, ErrLeft) || !errors.Is(err, context.Canceled) {
		t.Errorf("leaving caller err = %v, want ErrLeft wrapping context.Canceled", err)
	}
	waitForWaiters(t, &g, "k", 1)

	close(release)
	if v := <-bResult; v != "done" {
		t.Errorf("live caller result = %q, want done", v)
	}
	if n := starts.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestDoLiveCallerSurvivesSuccessiveOwners(t *testing.T) {
	var g Group[string]
	var starts atomic.Int32
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	run := blockingRun(&starts, started, release)

	leaver := func() (context.CancelFunc, chan error) {
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			_, _, err := g.Do(ctx, "k", run)
			errc <- err
		}()
		return cancel, errc
	}

	leaveA, aErr := leaver()
	<-started
	leaveB, bErr := leaver()
	waitForWaiters(t, &g, "k", 2)

	cResult := make(chan error, 1)
	go func() {
		v, _, err := g.Do(context.Background(), "k", run)
		if err == nil && v != "done" {
			t.Errorf("live caller result = %q", v)
		}
		cResult <- err
	}()
	waitForWaiters(t, &g, "k", 3)

	leaveA()
	<-aErr
	leaveB()
	<-bErr
	waitForWaiters(t, &g, "k", 1)

	close(release)
	if err := <-cResult; err != nil {
		t.Errorf("live caller err = %v", err)
	}
	if n := starts.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestDoLastCallerLeavingCancelsRun(t *testing.T) {
	var g Group[string]
	var abandoned []string
	g.OnAbandon = func(key string) { abandoned = append(abandoned, key) }

	runCtxErr := make(chan error, 1)
	started := make(chan struct{})
	ctx, leave := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", func(runCtx context.Context) (string, error) {
			close(started)
			<-runCtx.Done()
			runCtxErr <- runCtx.Err()
			return "", runCtx.Err()
		})
		errc <- err
	}()
	<-started
	leave()

	if err := <-errc; !errors.Is(err, ErrLeft) {
		t.Errorf("err = %v, want ErrLeft", err)
	}
	select {
	case err := <-runCtxErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run ctx err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled after the last caller left")
	}
	if !slices.Equal(abandoned, []string{"k"}) {
		t.Errorf("abandoned = %v, want [k]", abandoned)
	}
	if g.InFlight("k") {
		t.Error("abandoned key still in flight")
	}
}

func TestDoAfterAbandonStartsFreshRun(t *testing.T) {
	var g Group[string]
	var starts atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	run := blockingRun(&starts, started, release)

	ctx, leave := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := g.Do(ctx, "k", run)
		errc <- err
	}()
	<-started
	leave()
	<-errc

	close(release)
	v, _, err := g.Do(context.Background(), "k", run)
	if err != nil || v != "done" {
		t.Errorf("Do() = %q, %v", v, err)
	}
	if n := starts.Load(); n != 2 {
		t.Errorf("runs = %d, want 2", n)
	}
}

func TestCancelAll(t *testing.T) {
	var g Group[string]
	var starts atomic.Int32
	started := make(chan struct{}, 2)
	run := blockingRun(&starts, started, nil)

	errs := make(chan error, 2)
	for _, key := range []string{"b", "a"} {
		go func() {
			_, _, err := g.Do(context.Background(), key, run)
			errs <- err
		}()
	}
	<-started
	<-started

	if keys := g.CancelAll(); !slices.Equal(keys, []string{"a", "b"}) {
		t.Errorf("CancelAll() = %v, want [a b]", keys)
	}
	for range 2 {
		err := <-errs
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrLeft) {
			t.Errorf("err = %v, want the run's context.Canceled", err)
		}
	}
}

func TestZeroGroupQueries(t *testing.T) {
	var g Group[int]
	if g.InFlight("x") || g.Waiters("x") != 0 || len(g.CancelAll()) != 0 {
		t.Error("zero Group should report nothing in flight")
	}
}
