// Package hotness tracks how frequently query centers are being hit, with
// exponential decay, so the result cache can hold popular areas longer. Keys
// are H3 cells of the query center; the tracker itself is key-agnostic.
package hotness

import (
	"math"
	"sync"
	"time"
)

// Tracker scores keys by recent activity. Safe for concurrent use.
type Tracker interface {
	// Touch records one hit and returns the updated score.
	Touch(key string) float64
	Score(key string) float64
}

// Class buckets a score for TTL selection.
type Class int

const (
	Cold Class = iota
	Warm
	Hot
)

func (c Class) String() string {
	switch c {
	case Hot:
		return "hot"
	case Warm:
		return "warm"
	default:
		return "cold"
	}
}

// Classify maps a score against the hot threshold; half the threshold counts
// as warm.
func Classify(score, threshold float64) Class {
	switch {
	case threshold <= 0:
		return Cold
	case score >= threshold:
		return Hot
	case score >= threshold/2:
		return Warm
	default:
		return Cold
	}
}

type entry struct {
	score float64
	last  time.Time
}

// Decay is an exponential-decay tracker: a key touched n times and then left
// alone for one half-life scores n/2.
type Decay struct {
	halfLife time.Duration
	now      func() time.Time

	mu sync.Mutex
	m  map[string]*entry
}

var _ Tracker = (*Decay)(nil)

func NewDecay(halfLife time.Duration) *Decay {
	if halfLife <= 0 {
		halfLife = time.Minute
	}
	return &Decay{halfLife: halfLife, now: time.Now, m: make(map[string]*entry)}
}

func (d *Decay) Touch(key string) float64 {
	if key == "" {
		return 0
	}
	n := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.m[key]
	if e == nil {
		d.m[key] = &entry{score: 1, last: n}
		return 1
	}
	e.score = decay(e.score, n.Sub(e.last), d.halfLife) + 1
	e.last = n
	return e.score
}

func (d *Decay) Score(key string) float64 {
	if key == "" {
		return 0
	}
	n := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.m[key]
	if e == nil {
		return 0
	}
	return decay(e.score, n.Sub(e.last), d.halfLife)
}

func decay(score float64, elapsed, halfLife time.Duration) float64 {
	if elapsed <= 0 {
		return score
	}
	return score * math.Exp2(-elapsed.Seconds()/halfLife.Seconds())
}

// Nop is the tracker used when adaptive TTLs are disabled.
type Nop struct{}

var _ Tracker = Nop{}

func (Nop) Touch(string) float64 { return 0 }
func (Nop) Score(string) float64 { return 0 }
