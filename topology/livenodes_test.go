package topology

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func localnodesServer(t *testing.T, hosts func() []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/localnodes" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hosts())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLiveNodes_BootstrapsFromSeedBeforeFirstPoll(t *testing.T) {
	srv := localnodesServer(t, func() []string { return []string{} })
	seed := MustNodeURI(srv.URL)

	ln, err := New(Config{Seed: seed, UpdatePeriod: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if got := ln.NextAsURI(); !got.Equals(seed) {
		t.Fatalf("expected seed before any poll, got %s", got)
	}
	if len(ln.GetLiveNodes()) != 1 {
		t.Fatalf("expected single-node bootstrap membership, got %v", ln.GetLiveNodes())
	}
}

func TestLiveNodes_MergesReportedNodesAfterPoll(t *testing.T) {
	reported := []string{"n1", "n2", "n3"}
	srv := localnodesServer(t, func() []string { return reported })
	seed := MustNodeURI(srv.URL)

	ln, err := New(Config{Seed: seed, UpdatePeriod: 15 * time.Millisecond, PollerTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ln.Start(context.Background())
	defer ln.Close(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		if len(ln.GetLiveNodes()) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("membership never grew to 3 nodes, got %v", ln.GetLiveNodes())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLiveNodes_TickQuarantinesTargetOnFailedPoll(t *testing.T) {
	goodSrv := localnodesServer(t, func() []string { return []string{} })
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	good := MustNodeURI(goodSrv.URL)
	bad := MustNodeURI(badSrv.URL)

	ln, err := New(Config{Seed: good, UpdatePeriod: time.Hour, PollerTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	// Pre-seed membership with both nodes active, poll index pointed at
	// the second (bad) node so the manual tick below targets it.
	m := Membership{Active: []NodeURI{good, bad}, PollIndex: 1}
	ln.membership.Store(&m)

	ln.tick()

	snap := ln.Snapshot()
	if len(snap.Active) != 1 || !snap.Active[0].Equals(good) {
		t.Fatalf("expected only good node active, got %+v", snap.Active)
	}
	if len(snap.Quarantined) != 1 || !snap.Quarantined[0].Equals(bad) {
		t.Fatalf("expected bad node quarantined, got %+v", snap.Quarantined)
	}
}

func TestLiveNodes_TickKeepsExistingMembershipOnEmptyReportedHosts(t *testing.T) {
	srv := localnodesServer(t, func() []string { return []string{} })
	polled := MustNodeURI(srv.URL)
	other := MustNodeURI("http://other:8000")

	ln, err := New(Config{Seed: polled, UpdatePeriod: time.Hour, PollerTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	// Pre-seed membership with two already-active nodes and a
	// quarantined one, poll index pointed at the server under test.
	m := Membership{Active: []NodeURI{polled, other}, Quarantined: []NodeURI{MustNodeURI("http://q1:8000")}, PollIndex: 0}
	ln.membership.Store(&m)

	ln.tick()

	snap := ln.Snapshot()
	if len(snap.Active) != 2 {
		t.Fatalf("expected a 2xx empty host list to leave active membership untouched, got %+v", snap.Active)
	}
	if len(snap.Quarantined) != 1 {
		t.Fatalf("expected quarantined membership untouched, got %+v", snap.Quarantined)
	}
	if snap.PollIndex != 1 {
		t.Fatalf("expected poll index to still advance, got %d", snap.PollIndex)
	}
}

func TestLiveNodes_TickNeverEmptiesActiveSet(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	seed := MustNodeURI(badSrv.URL)
	ln, err := New(Config{Seed: seed, UpdatePeriod: time.Hour, PollerTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	ln.tick()

	snap := ln.Snapshot()
	if len(snap.Active) != 1 || !snap.Active[0].Equals(seed) {
		t.Fatalf("expected sole node to remain active despite failure, got %+v", snap)
	}
}

func TestLiveNodes_RoundRobinCoversAllActiveNodes(t *testing.T) {
	a := MustNodeURI("http://a1:8000")
	b := MustNodeURI("http://a2:8000")
	ln := &LiveNodes{seed: a}
	m := Membership{Active: []NodeURI{a, b}}
	ln.membership.Store(&m)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		seen[ln.NextAsURI().String()] = true
	}
	if !seen[a.String()] || !seen[b.String()] {
		t.Fatalf("expected round robin to cover both active nodes, got %v", seen)
	}
}

func TestLiveNodes_GetAlternatorLiveNodesAnnotatesSeed(t *testing.T) {
	seed := MustNodeURI("http://seed:8000")
	other := MustNodeURI("http://other:8000")
	ln := &LiveNodes{seed: seed}
	m := Membership{Active: []NodeURI{seed, other}}
	ln.membership.Store(&m)

	annotated := ln.GetAlternatorLiveNodes()
	var seedSeen, otherSeen bool
	for _, a := range annotated {
		if a.URI.Equals(seed) && a.IsSeed {
			seedSeen = true
		}
		if a.URI.Equals(other) && !a.IsSeed {
			otherSeen = true
		}
	}
	if !seedSeen || !otherSeen {
		t.Fatalf("expected exactly seed annotated, got %+v", annotated)
	}
}
