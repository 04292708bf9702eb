package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for minimal container images
)

// CapacityScope selects the unit that max_per_slot is counted against.
type CapacityScope string

const (
	// ScopeDay counts every confirmed reservation on the same calendar date.
	ScopeDay CapacityScope = "day"
	// ScopeSlot counts confirmed reservations at the exact timestamp.
	ScopeSlot CapacityScope = "slot"
)

// Store is the parsed, ready-to-use form of StoreConfig.
type Store struct {
	// Open and Close are offsets from midnight; Close is exclusive.
	Open         time.Duration
	Close        time.Duration
	Interval     time.Duration
	MaxPerSlot   int
	Scope        CapacityScope
	Lead         time.Duration
	MinPeople    int
	MaxPeople    int
	Location     *time.Location
	Keywords     []string
	AtomicInsert bool
}

// Build parses clock strings and the timezone.
func (s StoreConfig) Build() (Store, error) {
	open, err := parseClock(s.OpenTime)
	if err != nil {
		return Store{}, fmt.Errorf("store.open_time: %w", err)
	}
	closeAt, err := parseClock(s.CloseTime)
	if err != nil {
		return Store{}, fmt.Errorf("store.close_time: %w", err)
	}
	if closeAt <= open {
		return Store{}, fmt.Errorf("store.close_time %q must be after open_time %q", s.CloseTime, s.OpenTime)
	}
	loc, err := time.LoadLocation(strings.TrimSpace(s.Timezone))
	if err != nil {
		return Store{}, fmt.Errorf("store.timezone: %w", err)
	}
	if s.MinPeople > s.MaxPeople {
		return Store{}, fmt.Errorf("store.min_people %d exceeds max_people %d", s.MinPeople, s.MaxPeople)
	}

	scope := CapacityScope(strings.ToLower(strings.TrimSpace(s.CapacityScope)))
	switch scope {
	case "":
		scope = ScopeDay
	case ScopeDay, ScopeSlot:
	default:
		return Store{}, fmt.Errorf("store.capacity_scope %q; allowed: day, slot", s.CapacityScope)
	}

	keywords := make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	return Store{
		Open:         open,
		Close:        closeAt,
		Interval:     time.Duration(s.IntervalMinutes) * time.Minute,
		MaxPerSlot:   s.MaxPerSlot,
		Scope:        scope,
		Lead:         time.Duration(s.LeadMinutes) * time.Minute,
		MinPeople:    s.MinPeople,
		MaxPeople:    s.MaxPeople,
		Location:     loc,
		Keywords:     keywords,
		AtomicInsert: s.AtomicInsert,
	}, nil
}

// DefaultStore returns the built default store rules. It panics only if the
// defaults themselves are broken, which tests would catch.
func DefaultStore() Store {
	st, err := Default().Store.Build()
	if err != nil {
		panic(err)
	}
	return st
}

// parseClock converts "HH:MM" into an offset from midnight. "24:00" is allowed as a close time.
func parseClock(v string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q out of range", v)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
