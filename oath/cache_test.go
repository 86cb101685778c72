package oath

import (
	"testing"
	"time"
)

func TestPasswordCacheSlidingExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewPasswordCache()
	c.now = func() time.Time { return now }

	c.Set("device-a", "hunter2")

	// Just inside the window: the hit refreshes the stamp.
	now = now.Add(CacheTTL - time.Second)
	if got, ok := c.Get("device-a"); !ok || got != "hunter2" {
		t.Fatalf("Get inside window = %q, %v", got, ok)
	}

	// Another near-full window later the refreshed entry is still alive.
	now = now.Add(CacheTTL - time.Second)
	if _, ok := c.Get("device-a"); !ok {
		t.Fatal("sliding window did not extend expiry")
	}

	// Past the window without touches the entry is gone.
	now = now.Add(CacheTTL + time.Second)
	if _, ok := c.Get("device-a"); ok {
		t.Fatal("entry survived past its window")
	}
}

func TestPasswordCacheMiss(t *testing.T) {
	c := NewPasswordCache()
	if _, ok := c.Get("unknown"); ok {
		t.Fatal("Get on empty cache reported a hit")
	}
}

func TestAccessKeyCacheClear(t *testing.T) {
	c := NewAccessKeyCache()
	c.Set("device-a", []byte{1, 2, 3})
	c.Set("device-b", []byte{4, 5, 6})
	c.Clear()
	if _, ok := c.Get("device-a"); ok {
		t.Fatal("entry survived Clear")
	}
	if _, ok := c.Get("device-b"); ok {
		t.Fatal("entry survived Clear")
	}
}

func TestCachesAreIndependentPerDevice(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewAccessKeyCache()
	c.now = func() time.Time { return now }

	c.Set("device-a", []byte{1})
	now = now.Add(CacheTTL / 2)
	c.Set("device-b", []byte{2})

	now = now.Add(CacheTTL/2 + time.Second)
	if _, ok := c.Get("device-a"); ok {
		t.Fatal("device-a entry should have expired")
	}
	if _, ok := c.Get("device-b"); !ok {
		t.Fatal("device-b entry expired early")
	}
}
