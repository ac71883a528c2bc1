package server

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestConn(t testing.TB) *SafeConn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return NewSafeConn(a, "pipe")
}

// checkConsistent asserts the registry's two maps mirror each other.
func checkConsistent(t testing.TB, r *SessionRegistry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	require.Equal(t, len(r.byIdentity), len(r.byConn), "map sizes diverged")
	for identity, conn := range r.byIdentity {
		require.Equal(t, identity, r.byConn[conn], "identity %s not mirrored", identity)
	}
}

func TestSessionRegistryBindLookup(t *testing.T) {
	r := NewSessionRegistry()
	alice := newTestConn(t)

	assert.Nil(t, r.Bind("alice", alice))
	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)
	assert.True(t, r.IsOnline("alice"))
	assert.False(t, r.IsOnline("bob"))

	identity, ok := r.IdentityOf(alice)
	require.True(t, ok)
	assert.Equal(t, "alice", identity)
	assert.Equal(t, 1, r.Count())
}

func TestSessionRegistrySupersede(t *testing.T) {
	r := NewSessionRegistry()
	first := newTestConn(t)
	second := newTestConn(t)

	r.Bind("alice", first)
	superseded := r.Bind("alice", second)
	assert.Same(t, first, superseded)

	got, _ := r.Lookup("alice")
	assert.Same(t, second, got)
	_, ok := r.IdentityOf(first)
	assert.False(t, ok, "displaced connection must not keep a session")

	// Cleaning up the displaced connection must not log out the new one
	_, ok = r.Unbind(first)
	assert.False(t, ok)
	assert.True(t, r.IsOnline("alice"))
	checkConsistent(t, r)
}

func TestSessionRegistryRebindConnection(t *testing.T) {
	r := NewSessionRegistry()
	conn := newTestConn(t)

	r.Bind("alice", conn)
	r.Bind("bob", conn)

	assert.False(t, r.IsOnline("alice"))
	assert.True(t, r.IsOnline("bob"))
	assert.Equal(t, 1, r.Count())
	checkConsistent(t, r)
}

func TestSessionRegistryUnbindIdempotent(t *testing.T) {
	r := NewSessionRegistry()
	conn := newTestConn(t)
	r.Bind("alice", conn)

	identity, ok := r.Unbind(conn)
	assert.True(t, ok)
	assert.Equal(t, "alice", identity)

	for i := 0; i < 3; i++ {
		_, ok = r.Unbind(conn)
		assert.False(t, ok)
	}
	assert.False(t, r.IsOnline("alice"))
	assert.Zero(t, r.Count())

	// Never-bound connection
	_, ok = r.Unbind(newTestConn(t))
	assert.False(t, ok)
}

func TestSessionRegistryOnlineSorted(t *testing.T) {
	r := NewSessionRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		r.Bind(name, newTestConn(t))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Online())
}

func TestSessionRegistryConcurrent(t *testing.T) {
	r := NewSessionRegistry()
	const workers = 16
	const rounds = 200

	conns := make([]*SafeConn, workers)
	for i := range conns {
		conns[i] = newTestConn(t)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				identity := fmt.Sprintf("user%d", (w+i)%5)
				switch i % 4 {
				case 0, 1:
					r.Bind(identity, conns[w])
				case 2:
					r.Lookup(identity)
					r.Online()
				case 3:
					r.Unbind(conns[w])
				}
			}
		}(w)
	}
	wg.Wait()

	checkConsistent(t, r)
	assert.LessOrEqual(t, r.Count(), 5)
}

func TestSessionRegistryGaugeMatchesCount(t *testing.T) {
	r := NewSessionRegistry()
	metrics := NewMetrics()
	r.SetMetrics(metrics)

	const workers = 16
	conns := make([]*SafeConn, workers)
	for i := range conns {
		conns[i] = newTestConn(t)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if i%3 == 2 {
					r.Unbind(conns[w])
				} else {
					r.Bind(fmt.Sprintf("user%d", (w+i)%7), conns[w])
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, float64(r.Count()), testutil.ToFloat64(metrics.activeSessions))

	for _, conn := range conns {
		r.Unbind(conn)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activeSessions))
}

// TestSessionRegistryModel compares the registry against a simple model
// under random bind/unbind sequences.
func TestSessionRegistryModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewSessionRegistry()
		conns := make([]*SafeConn, 4)
		for i := range conns {
			a, b := net.Pipe()
			defer a.Close()
			defer b.Close()
			conns[i] = NewSafeConn(a, "pipe")
		}
		identities := []string{"alice", "bob", "carol"}
		model := map[string]int{} // identity -> conn index

		steps := rapid.IntRange(1, 50).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			c := rapid.IntRange(0, len(conns)-1).Draw(rt, "conn")
			if rapid.Bool().Draw(rt, "bind") {
				id := rapid.SampledFrom(identities).Draw(rt, "identity")
				for other, idx := range model {
					if idx == c {
						delete(model, other)
					}
				}
				model[id] = c
				r.Bind(id, conns[c])
			} else {
				for id, idx := range model {
					if idx == c {
						delete(model, id)
					}
				}
				r.Unbind(conns[c])
			}

			if r.Count() != len(model) {
				rt.Fatalf("count %d, model %d", r.Count(), len(model))
			}
			for _, id := range identities {
				got, ok := r.Lookup(id)
				idx, want := model[id]
				if ok != want {
					rt.Fatalf("%s online=%v, model=%v", id, ok, want)
				}
				if ok && got != conns[idx] {
					rt.Fatalf("%s bound to wrong connection", id)
				}
			}
		}
	})
}
