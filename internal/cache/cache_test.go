//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polymorfiq/dns-server/internal/dnswire"
)

func testResource(name dnswire.Name, ttl int32, addr string) dnswire.Resource {
	return dnswire.Resource{
		Name:  name,
		Type:  dnswire.TypeA,
		Class: dnswire.ClassIN,
		TTL:   ttl,
		Data:  dnswire.RDataA{Addr: addr},
	}
}

func testQuestion(name dnswire.Name) dnswire.Question {
	return dnswire.Question{Name: name, Type: dnswire.TypeA, Class: dnswire.ClassIN}
}

func TestCacheTTLAging(t *testing.T) {
	c := New(0)
	t0 := time.Now()

	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"example", "com"}, 60, "1.2.3.4")))

	tests := []struct {
		name    string
		at      time.Time
		wantTTL int32
		wantHit bool
	}{
		{"Immediately", t0, 60, true},
		{"After20s", t0.Add(20 * time.Second), 40, true},
		{"AtExpiry", t0.Add(60 * time.Second), 0, true},
		{"PastExpiry", t0.Add(61 * time.Second), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Lookup(tt.at, testQuestion(dnswire.Name{"example", "com"}))
			if !tt.wantHit {
				require.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			require.Equal(t, tt.wantTTL, got[0].TTL)
			require.Equal(t, dnswire.RDataA{Addr: "1.2.3.4"}, got[0].Data)
		})
	}
}

func TestCacheCaseInsensitiveLookup(t *testing.T) {
	c := New(0)
	t0 := time.Now()

	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"Example", "COM"}, 60, "1.2.3.4")))

	got := c.Lookup(t0, testQuestion(dnswire.Name{"example", "com"}))
	require.Len(t, got, 1)
	// The stored spelling is preserved, only matching folds case.
	require.Equal(t, dnswire.Name{"Example", "COM"}, got[0].Name)
}

func TestCacheKeyIncludesRData(t *testing.T) {
	c := New(0)
	t0 := time.Now()
	name := dnswire.Name{"example", "com"}

	require.NoError(t, c.Store(t0, testResource(name, 60, "1.2.3.4")))
	require.NoError(t, c.Store(t0, testResource(name, 60, "5.6.7.8")))

	got := c.Lookup(t0, testQuestion(name))
	require.Len(t, got, 2)
}

func TestCacheStoreReplacesSameKey(t *testing.T) {
	c := New(0)
	t0 := time.Now()
	name := dnswire.Name{"example", "com"}

	require.NoError(t, c.Store(t0, testResource(name, 60, "1.2.3.4")))
	require.NoError(t, c.Store(t0.Add(30*time.Second), testResource(name, 60, "1.2.3.4")))

	// The second store reset the clock: at t0+70 the record lives on.
	got := c.Lookup(t0.Add(70*time.Second), testQuestion(name))
	require.Len(t, got, 1)
	require.Equal(t, int32(20), got[0].TTL)
}

func TestCacheTypeAndClassAreExact(t *testing.T) {
	c := New(0)
	t0 := time.Now()
	name := dnswire.Name{"example", "com"}

	require.NoError(t, c.Store(t0, testResource(name, 60, "1.2.3.4")))

	q := dnswire.Question{Name: name, Type: dnswire.TypeANY, Class: dnswire.ClassIN}
	require.Empty(t, c.Lookup(t0, q))

	q = dnswire.Question{Name: name, Type: dnswire.TypeA, Class: dnswire.ClassCH}
	require.Empty(t, c.Lookup(t0, q))
}

func TestCacheExpiryTimerRemovesEntry(t *testing.T) {
	c := New(0)
	t0 := time.Now()

	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"example", "com"}, 0, "1.2.3.4")))

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheBucketBound(t *testing.T) {
	c := New(2)
	t0 := time.Now()

	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"a", "com"}, 60, "1.1.1.1")))
	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"b", "com"}, 60, "2.2.2.2")))
	require.NoError(t, c.Store(t0, testResource(dnswire.Name{"c", "com"}, 60, "3.3.3.3")))

	require.Equal(t, 2, c.Len())
	// The least recently stored bucket was evicted.
	require.Empty(t, c.Lookup(t0, testQuestion(dnswire.Name{"a", "com"})))
	require.Len(t, c.Lookup(t0, testQuestion(dnswire.Name{"c", "com"})), 1)
}

func TestCacheConcurrentLookupDuringStore(t *testing.T) {
	c := New(0)
	t0 := time.Now()
	name := dnswire.Name{"example", "com"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = c.Store(t0, testResource(name, 60, "1.2.3.4"))
		}
	}()
	for i := 0; i < 1000; i++ {
		c.Lookup(t0, testQuestion(name))
	}
	<-done

	require.Len(t, c.Lookup(t0, testQuestion(name)), 1)
}
