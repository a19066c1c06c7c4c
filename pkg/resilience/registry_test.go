package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/metrics"
)

func TestRegistry_ReusesCommands(t *testing.T) {
	r := NewRegistry(testConfig())
	key := Key{Biller: "rocketgate", Operation: "charge-new-card"}

	var wg sync.WaitGroup
	cmds := make([]*Command, 20)
	for i := range cmds {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmds[i] = r.Command(key)
		}(i)
	}
	wg.Wait()

	for i, cmd := range cmds {
		if cmd != cmds[0] {
			t.Fatalf("Command %d is a different instance", i)
		}
	}
	if cmds[0].Name() != "rocketgate.charge-new-card" {
		t.Errorf("Unexpected name %q", cmds[0].Name())
	}
}

func TestRegistry_CircuitsAreIsolated(t *testing.T) {
	r := NewRegistry(testConfig())
	ctx := context.Background()

	failing := r.Command(Key{Biller: "rocketgate", Operation: "charge-new-card"})
	for i := 0; i < 3; i++ {
		failing.Run(ctx,
			func(ctx context.Context) (biller.Response, error) { return nil, errors.New("down") },
			rocketgateFallback,
		)
	}
	if failing.State() != metrics.CircuitOpen {
		t.Fatalf("Expected rocketgate circuit open, got %s", failing.State())
	}

	for _, key := range []Key{
		{Biller: "netbilling", Operation: "charge-new-card"},
		{Biller: "rocketgate", Operation: "lookup-3ds2"},
	} {
		cmd := r.Command(key)
		resp := cmd.Run(ctx,
			func(ctx context.Context) (biller.Response, error) {
				return netbilling.Normalizer(`{"code":"0"}`, time.Now(), time.Now())
			},
			func(err error) biller.Response { return netbilling.NewAbortedResponse(err) },
		)
		if resp.Result() != biller.ResultApproved {
			t.Errorf("%s must be unaffected, got %s", key, resp.Result())
		}
		if cmd.State() != metrics.CircuitClosed {
			t.Errorf("%s must stay closed, got %s", key, cmd.State())
		}
	}
}

func TestRegistry_Overrides(t *testing.T) {
	r := NewRegistry(DefaultConfig(),
		WithOverride(Key{Biller: "epoch"}, Config{Timeout: 10 * time.Second}),
		WithOverride(Key{Biller: "epoch", Operation: "lookup-3ds2"}, Config{Timeout: 3 * time.Second}),
	)

	if got := r.Command(Key{Biller: "epoch", Operation: "charge-new-card"}).timeout; got != 10*time.Second {
		t.Errorf("Expected biller override 10s, got %v", got)
	}
	if got := r.Command(Key{Biller: "epoch", Operation: "lookup-3ds2"}).timeout; got != 3*time.Second {
		t.Errorf("Expected operation override 3s, got %v", got)
	}
	if got := r.Command(Key{Biller: "qysso", Operation: "charge-new-card"}).timeout; got != 30*time.Second {
		t.Errorf("Expected default 30s, got %v", got)
	}
}

func TestRegistry_States(t *testing.T) {
	r := NewRegistry(testConfig())
	r.Command(Key{Biller: "qysso", Operation: "charge-new-card"})
	r.Command(Key{Biller: "epoch", Operation: "charge-new-card"})

	states := r.States()
	if len(states) != 2 {
		t.Fatalf("Expected 2 circuits, got %d", len(states))
	}
	if states[0].Name != "epoch.charge-new-card" || states[0].State != "closed" {
		t.Errorf("Unexpected first state: %+v", states[0])
	}
}
