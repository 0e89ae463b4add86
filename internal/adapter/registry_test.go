package adapter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"positionScope/internal/config"
	"positionScope/internal/errs"
)

type stubAdapter struct {
	Adapter
	platform string
	chainID  uint64
}

func (s *stubAdapter) Platform() string { return s.platform }
func (s *stubAdapter) ChainID() uint64  { return s.chainID }

func testDeployments() config.Deployments {
	enabled := config.PlatformDeployment{
		Enabled:         true,
		Factory:         common.HexToAddress("0x1"),
		PositionManager: common.HexToAddress("0x2"),
		FeeTiers:        map[uint32]int32{500: 10},
	}
	disabled := enabled
	disabled.Enabled = false
	return config.Deployments{
		1: {Name: "test", Platforms: map[string]config.PlatformDeployment{
			"good":    enabled,
			"bad":     enabled,
			"off":     disabled,
			"panicky": enabled,
		}},
	}
}

func working(calls *int) Constructor {
	return func(d Deps) (Adapter, error) {
		*calls++
		return &stubAdapter{platform: d.Platform, chainID: d.ChainID}, nil
	}
}

func TestResolveAllIsolatesFailures(t *testing.T) {
	d := testDeployments()
	delete(d[1].Platforms, "panicky")

	var goodCalls int
	r := NewRegistry(d, nil)
	r.Register("good", working(&goodCalls))
	r.Register("bad", func(Deps) (Adapter, error) {
		return nil, errors.New("rpc down")
	})

	res := r.ResolveAll(1)
	if len(res.Adapters) != 1 || res.Adapters[0].Platform() != "good" {
		t.Fatalf("adapters mismatch: %+v", res.Adapters)
	}
	if len(res.Failures) != 1 || res.Failures[0].Platform != "bad" {
		t.Fatalf("failures mismatch: %+v", res.Failures)
	}
}

func TestResolveAllRecoversPanics(t *testing.T) {
	d := testDeployments()
	delete(d[1].Platforms, "bad")

	var goodCalls int
	r := NewRegistry(d, nil)
	r.Register("good", working(&goodCalls))
	r.Register("panicky", func(Deps) (Adapter, error) {
		panic("boom")
	})

	res := r.ResolveAll(1)
	if len(res.Adapters) != 1 {
		t.Fatalf("expected 1 adapter, got %d", len(res.Adapters))
	}
	if len(res.Failures) != 1 || res.Failures[0].Platform != "panicky" {
		t.Fatalf("failures mismatch: %+v", res.Failures)
	}
}

func TestResolveNotRegistered(t *testing.T) {
	var calls int
	r := NewRegistry(testDeployments(), nil)
	r.Register("good", working(&calls))
	r.Register("off", working(&calls))

	cases := []struct {
		platform string
		chainID  uint64
	}{
		{"unknown", 1},
		{"good", 999},
		{"off", 1},
	}
	for _, tc := range cases {
		_, err := r.Resolve(tc.platform, tc.chainID)
		if !errors.Is(err, errs.ErrNotRegistered) {
			t.Fatalf("%s/%d: expected not registered, got %v", tc.platform, tc.chainID, err)
		}
	}
	if calls != 0 {
		t.Fatalf("constructor called %d times", calls)
	}
}

func TestResolveCachesAdapters(t *testing.T) {
	var calls int
	reg := prometheus.NewRegistry()
	r := NewRegistry(testDeployments(), nil, WithMetrics(NewMetrics(reg)))
	r.Register("good", working(&calls))

	first, err := r.Resolve("good", 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve("good", 1)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second || calls != 1 {
		t.Fatalf("expected cached adapter, constructor calls %d", calls)
	}
	if got := testutil.ToFloat64(r.Metrics().constructed.WithLabelValues("good", "1")); got != 1 {
		t.Fatalf("constructed metric mismatch: %v", got)
	}

	r.Register("good", working(&calls))
	if _, err := r.Resolve("good", 1); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if calls != 2 {
		t.Fatalf("re-register should drop the cache, calls %d", calls)
	}
}

func TestResolveReaderFailure(t *testing.T) {
	var calls int
	r := NewRegistry(testDeployments(), func(uint64) (ChainReader, error) {
		return nil, errors.New("dial failed")
	})
	r.Register("good", working(&calls))

	if _, err := r.Resolve("good", 1); err == nil {
		t.Fatalf("expected reader error")
	}
	if calls != 0 {
		t.Fatalf("constructor should not run without a reader")
	}
	if got := testutil.ToFloat64(r.Metrics().constructErr.WithLabelValues("good", "1")); got != 1 {
		t.Fatalf("error metric mismatch: %v", got)
	}
}

func TestPlatforms(t *testing.T) {
	var calls int
	r := NewRegistry(testDeployments(), nil)
	r.Register("good", working(&calls))
	r.Register("off", working(&calls))

	got := r.Platforms(1)
	if len(got) != 1 || got[0] != "good" {
		t.Fatalf("platforms mismatch: %v", got)
	}
}

func TestResolveDoesNotBlockOnSlowConstructor(t *testing.T) {
	d := testDeployments()
	delete(d[1].Platforms, "panicky")

	started := make(chan struct{})
	release := make(chan struct{})
	var slowCalls int
	var goodCalls int
	r := NewRegistry(d, nil)
	r.Register("good", working(&goodCalls))
	r.Register("bad", func(dep Deps) (Adapter, error) {
		slowCalls++
		close(started)
		<-release
		return &stubAdapter{platform: dep.Platform, chainID: dep.ChainID}, nil
	})

	var wg sync.WaitGroup
	var slow Adapter
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slow, slowErr = r.Resolve("bad", 1)
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve("good", 1)
		r.Platforms(1)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("resolve good: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("resolve blocked behind a slow constructor")
	}

	close(release)
	wg.Wait()
	if slowErr != nil {
		t.Fatalf("resolve slow: %v", slowErr)
	}
	again, err := r.Resolve("bad", 1)
	if err != nil || again != slow || slowCalls != 1 {
		t.Fatalf("slow adapter not cached: calls %d, err %v", slowCalls, err)
	}
}
