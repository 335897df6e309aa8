package controller

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used throughout the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// record is a registered controller plus its mutable cached address.
type record struct {
	device     Device
	address    string
	resolvedAt time.Time
}

// Registry is the in-memory table of known controllers.
//
// Membership is fixed at construction. The only mutable state is each
// controller's cached address, and every read or write of it happens under
// one mutex held only for the copy.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record
	logger  Logger
	now     func() time.Time
}

// NewRegistry builds a registry from static records. Every record starts
// without a cached address.
//
// Returns ErrDuplicateDevice if two records share an ID or a hostname and port, or ErrInvalidDevice
// if a record fails validation.
func NewRegistry(devices []Device) (*Registry, error) {
	records := make(map[string]*record, len(devices))
	hostnames := make(map[string]string, len(devices))
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := records[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, d.ID)
		}
		key := strings.ToLower(d.Hostname) + ":" + strconv.Itoa(d.Port)
		if other, exists := hostnames[key]; exists {
			return nil, fmt.Errorf("%w: %s and %s share %s", ErrDuplicateDevice, other, d.ID, key)
		}
		hostnames[key] = d.ID
		records[d.ID] = &record{device: d}
	}

	return &Registry{
		records: records,
		logger:  noopLogger{},
		now:     time.Now,
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// CachedAddress returns the endpoint a command for id should go to.
//
// Returns ErrUnknownDevice if id is not registered, or ErrNotReady if it is
// registered but has no cached address.
func (r *Registry) CachedAddress(id string) (Endpoint, error) {
	r.mu.Lock()
	rec, ok := r.records[id]
	var ep Endpoint
	if ok {
		ep = Endpoint{Address: rec.address, Port: rec.device.Port}
	}
	r.mu.Unlock()

	if !ok {
		return Endpoint{}, ErrUnknownDevice
	}
	if ep.Address == "" {
		return Endpoint{}, ErrNotReady
	}
	return ep, nil
}

// SetAddress overwrites the cached address for id.
// Unknown IDs are ignored and logged.
func (r *Registry) SetAddress(id, address string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	var previous string
	if ok {
		previous = rec.address
		rec.address = address
		rec.resolvedAt = r.now()
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("ignoring address for unknown controller", "controller_id", id, "address", address)
		return
	}
	if previous != address {
		r.logger.Info("controller address updated", "controller_id", id, "address", address, "previous", previous)
	}
}

// ClearAddress marks id as unresolved. Unknown IDs are ignored.
func (r *Registry) ClearAddress(id string) {
	r.mu.Lock()
	rec, ok := r.records[id]
	var previous string
	if ok {
		previous = rec.address
		rec.address = ""
		rec.resolvedAt = time.Time{}
	}
	r.mu.Unlock()

	if ok && previous != "" {
		r.logger.Info("controller address cleared", "controller_id", id, "previous", previous)
	}
}

// IDs returns a sorted snapshot of every registered controller ID.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Lookup returns the static record for id.
// Returns ErrUnknownDevice if id is not registered.
func (r *Registry) Lookup(id string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Device{}, ErrUnknownDevice
	}
	return rec.device, nil
}

// IDByHostname returns the ID of the controller advertising hostname.
// Hostnames compare case-insensitively. Records may share a hostname on
// different ports; the lowest ID wins.
func (r *Registry) IDByHostname(hostname string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := ""
	for id, rec := range r.records {
		if strings.EqualFold(rec.device.Hostname, hostname) && (match == "" || id < match) {
			match = id
		}
	}
	return match, match != ""
}

// Entry returns a point-in-time view of one controller.
func (r *Registry) Entry(id string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Entry{}, ErrUnknownDevice
	}
	return rec.entry(), nil
}

// Snapshot returns a point-in-time view of every controller, sorted by ID.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	entries := make([]Entry, 0, len(r.records))
	for _, rec := range r.records {
		entries = append(entries, rec.entry())
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Count returns the number of registered controllers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// CachedCount returns how many controllers currently have a cached address.
func (r *Registry) CachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if rec.address != "" {
			n++
		}
	}
	return n
}

// entry must be called with the registry lock held.
func (rec *record) entry() Entry {
	e := Entry{Device: rec.device, Address: rec.address}
	if rec.address != "" {
		t := rec.resolvedAt
		e.ResolvedAt = &t
	}
	return e
}
