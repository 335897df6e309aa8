package controller

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	t.Run("starts unresolved", func(t *testing.T) {
		r := mustRegistry(t,
			Device{ID: "101", Hostname: "soba-101.local", Port: 80},
			Device{ID: "102", Hostname: "soba-102.local", Port: 80},
		)
		if r.Count() != 2 {
			t.Errorf("Count() = %d, want 2", r.Count())
		}
		if r.CachedCount() != 0 {
			t.Errorf("CachedCount() = %d, want 0", r.CachedCount())
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewRegistry([]Device{
			{ID: "101", Hostname: "a.local", Port: 80},
			{ID: "101", Hostname: "b.local", Port: 80},
		})
		if !errors.Is(err, ErrDuplicateDevice) {
			t.Errorf("error = %v, want ErrDuplicateDevice", err)
		}
	})

	t.Run("duplicate endpoint", func(t *testing.T) {
		_, err := NewRegistry([]Device{
			{ID: "101", Hostname: "soba.local", Port: 80},
			{ID: "102", Hostname: "SOBA.local", Port: 80},
		})
		if !errors.Is(err, ErrDuplicateDevice) {
			t.Errorf("error = %v, want ErrDuplicateDevice", err)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		_, err := NewRegistry([]Device{{ID: "101", Hostname: "soba.local", Port: 0}})
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := NewRegistry([]Device{{Hostname: "soba.local", Port: 80}})
		if !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("error = %v, want ErrInvalidDevice", err)
		}
	})
}

func TestRegistryCachedAddress(t *testing.T) {
	r := mustRegistry(t, Device{ID: "101", Hostname: "soba-101.local", Port: 8080})

	if _, err := r.CachedAddress("999"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("unknown id error = %v, want ErrUnknownDevice", err)
	}
	if _, err := r.CachedAddress("101"); !errors.Is(err, ErrNotReady) {
		t.Errorf("unresolved error = %v, want ErrNotReady", err)
	}

	r.SetAddress("101", "10.0.0.5")
	ep, err := r.CachedAddress("101")
	if err != nil {
		t.Fatalf("CachedAddress() error = %v", err)
	}
	if ep.Address != "10.0.0.5" || ep.Port != 8080 {
		t.Errorf("CachedAddress() = %+v, want 10.0.0.5:8080", ep)
	}

	r.ClearAddress("101")
	if _, err := r.CachedAddress("101"); !errors.Is(err, ErrNotReady) {
		t.Errorf("after clear error = %v, want ErrNotReady", err)
	}
}

func TestRegistrySetAddressUnknownIsNoop(t *testing.T) {
	r := mustRegistry(t, Device{ID: "101", Hostname: "soba-101.local", Port: 80})

	r.SetAddress("999", "10.0.0.9")
	r.ClearAddress("999")

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
	if r.CachedCount() != 0 {
		t.Errorf("CachedCount() = %d, want 0", r.CachedCount())
	}
}

func TestRegistryIDsSorted(t *testing.T) {
	r := mustRegistry(t,
		Device{ID: "203", Hostname: "c.local", Port: 80},
		Device{ID: "101", Hostname: "a.local", Port: 80},
		Device{ID: "102", Hostname: "b.local", Port: 80},
	)

	ids := r.IDs()
	want := []string{"101", "102", "203"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	// The snapshot is independent of the registry.
	ids[0] = "mutated"
	if r.IDs()[0] != "101" {
		t.Error("IDs() returned shared slice")
	}
}

func TestRegistryLookupAndHostname(t *testing.T) {
	r := mustRegistry(t, Device{ID: "101", Hostname: "Soba-101.local", Port: 80, PinControllerID: "3"})

	d, err := r.Lookup("101")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if d.PinControllerID != "3" {
		t.Errorf("PinControllerID = %q, want 3", d.PinControllerID)
	}
	if _, err := r.Lookup("999"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Lookup(999) error = %v, want ErrUnknownDevice", err)
	}

	id, ok := r.IDByHostname("soba-101.LOCAL")
	if !ok || id != "101" {
		t.Errorf("IDByHostname() = %q, %v; want 101, true", id, ok)
	}
	if _, ok := r.IDByHostname("nobody.local"); ok {
		t.Error("IDByHostname() found unknown hostname")
	}
}

func TestRegistryIDByHostnameSharedHostname(t *testing.T) {
	r := mustRegistry(t,
		Device{ID: "203", Hostname: "gateway.local", Port: 8083},
		Device{ID: "201", Hostname: "gateway.local", Port: 8081},
		Device{ID: "202", Hostname: "Gateway.local", Port: 8082},
	)

	for i := 0; i < 20; i++ {
		id, ok := r.IDByHostname("gateway.local")
		if !ok || id != "201" {
			t.Fatalf("IDByHostname() = %q, %v; want 201, true", id, ok)
		}
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := mustRegistry(t,
		Device{ID: "102", Hostname: "b.local", Port: 80},
		Device{ID: "101", Hostname: "a.local", Port: 80},
	)
	r.SetAddress("102", "10.0.0.2")

	entries := r.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(entries))
	}
	if entries[0].ID != "101" || entries[0].Address != "" || entries[0].ResolvedAt != nil {
		t.Errorf("entries[0] = %+v, want unresolved 101", entries[0])
	}
	if entries[1].ID != "102" || entries[1].Address != "10.0.0.2" || entries[1].ResolvedAt == nil {
		t.Errorf("entries[1] = %+v, want 102 at 10.0.0.2", entries[1])
	}
	if r.CachedCount() != 1 {
		t.Errorf("CachedCount() = %d, want 1", r.CachedCount())
	}

	e, err := r.Entry("102")
	if err != nil || e.Address != "10.0.0.2" {
		t.Errorf("Entry(102) = %+v, %v", e, err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	const n = 20
	devices := make([]Device, n)
	for i := range devices {
		devices[i] = Device{ID: fmt.Sprintf("%d", 100+i), Hostname: fmt.Sprintf("soba-%d.local", i), Port: 80}
	}
	r := mustRegistry(t, devices...)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := devices[i].ID
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.SetAddress(id, "10.0.0.1")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.ClearAddress(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.CachedAddress(id)
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	if r.Count() != n {
		t.Errorf("Count() = %d, want %d", r.Count(), n)
	}
}
