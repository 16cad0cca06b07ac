// Package simulation implements component H: the simulation telemetry
// engine. It produces replayable or randomized telemetry frames consumed by
// the controller runtime (F) when active.
//
// Grounded on original_source/crates/r-ems-sim's generator.rs/frames.rs:
// the same three modes, the same sinusoid-plus-noise formula for Randomized,
// and the same cursor-wraparound ("ring") replay for Scenario/Hybrid.
package simulation

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Mode selects how telemetry frames are produced.
type Mode int

const (
	Randomized Mode = iota
	Scenario
	Hybrid
)

// Frame is one telemetry sample.
type Frame struct {
	ValueKW   float64 `json:"value_kw"`
	Synthetic bool    `json:"synthetic"`
	// Dropped marks a frame produced under an injected FaultDropMessage: the
	// controller runtime still ticks but the value carries no information.
	Dropped bool `json:"dropped,omitempty"`
}

// FaultKind is a fault the simulation engine can be asked to inject, used by
// the resilience harness's chaos actions (SPEC_FULL.md §4).
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultDropMessage
	FaultCorruptValue
)

// Engine produces deterministic-given-seed telemetry frames.
type Engine struct {
	mode  Mode
	seed  uint64
	sigma float64

	mu       sync.Mutex
	scenario []float64 // flattened scenario values, replayed in a ring
	cursor   int
	faults   map[string]FaultKind // component_id -> pending fault
}

// NewRandomized creates a Randomized-mode engine seeded deterministically.
func NewRandomized(seed uint64) *Engine {
	return &Engine{mode: Randomized, seed: seed, faults: make(map[string]FaultKind)}
}

// NewScenario creates a Scenario-mode engine replaying the frames in path
// (CSV or JSON, selected by extension) in a ring.
func NewScenario(path string) (*Engine, error) {
	values, err := loadScenarioFile(path)
	if err != nil {
		return nil, err
	}
	return &Engine{mode: Scenario, scenario: values, faults: make(map[string]FaultKind)}, nil
}

// NewHybrid creates a Hybrid-mode engine: scenario values from path plus
// Gaussian noise of standard deviation sigma, marked synthetic=true.
func NewHybrid(path string, seed uint64, sigma float64) (*Engine, error) {
	values, err := loadScenarioFile(path)
	if err != nil {
		return nil, err
	}
	return &Engine{mode: Hybrid, seed: seed, sigma: sigma, scenario: values, faults: make(map[string]FaultKind)}, nil
}

func loadScenarioFile(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".json") {
		var values []float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
		return values, nil
	}
	r := csv.NewReader(strings.NewReader(string(raw)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

// perTickRand derives a deterministic RNG for (grid, controller, tick) so
// NextFrame is pure given (seed, tick, scenario cursor) as spec.md §4.H
// requires, without a mutable shared RNG leaking cross-call state.
func (e *Engine) perTickRand(grid, controller string, tick uint64) *rand.Rand {
	h := fnv64(grid) ^ fnv64(controller)<<1 ^ tick<<3 ^ e.seed
	return rand.New(rand.NewSource(int64(h)))
}

func fnv64(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

// NextFrame returns the telemetry frame for (grid, controller) at tick,
// consuming and applying any fault injected against controller via
// InjectFault.
func (e *Engine) NextFrame(grid, controller string, tick uint64) Frame {
	var frame Frame
	switch e.mode {
	case Randomized:
		r := e.perTickRand(grid, controller, tick)
		base := 50.0 + 10.0*math.Sin(float64(tick)/20.0)
		noise := r.NormFloat64() * 2.0
		frame = Frame{ValueKW: base + noise, Synthetic: true}
	case Scenario:
		frame = Frame{ValueKW: e.ringValue(), Synthetic: false}
	case Hybrid:
		r := e.perTickRand(grid, controller, tick)
		frame = Frame{ValueKW: e.ringValue() + r.NormFloat64()*e.sigma, Synthetic: true}
	default:
		frame = Frame{}
	}

	switch e.ApplyFaults(controller) {
	case FaultCorruptValue:
		frame.ValueKW = math.NaN()
		frame.Synthetic = true
	case FaultDropMessage:
		frame.ValueKW = 0
		frame.Dropped = true
	}
	return frame
}

// ringValue reads the next scenario value and advances the cursor, wrapping
// to the start once the scenario is exhausted.
func (e *Engine) ringValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.scenario) == 0 {
		return 0
	}
	v := e.scenario[e.cursor]
	e.cursor = (e.cursor + 1) % len(e.scenario)
	return v
}

// InjectFault records a pending fault for componentID, consumed by the next
// NextFrame/ApplyFaults call. This is the contract surface spec.md §6 names
// ("a trait exposing inject_fault(component_id, fault_kind)").
func (e *Engine) InjectFault(componentID string, kind FaultKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[componentID] = kind
}

// ApplyFaults consumes and returns the pending fault for componentID, if
// any, resetting it to FaultNone.
func (e *Engine) ApplyFaults(componentID string) FaultKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.faults[componentID]
	e.faults[componentID] = FaultNone
	return f
}
