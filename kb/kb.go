package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/model"
)

var (
	ErrPulsarExists   = errors.New("pulsar already exists")
	ErrPulsarNotFound = errors.New("pulsar not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventPulsarAdded EventType = iota
	EventPulsarRemoved
	EventProperMotionUpdated
)

func (t EventType) String() string {
	switch t {
	case EventPulsarAdded:
		return "added"
	case EventPulsarRemoved:
		return "removed"
	case EventProperMotionUpdated:
		return "proper_motion_updated"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type  EventType
	Name  string
	Frame model.Frame // authoritative frame after the change
}

// CountRecorder receives the catalog size after every mutation.
type CountRecorder interface {
	SetPulsarCount(n int)
}

// KnowledgeBase is an in-memory, thread-safe catalog of pulsar records keyed
// by name. Records are shared: callers reading derived quantities go through
// the record's own lock, not the catalog's.
type KnowledgeBase struct {
	mu sync.RWMutex

	pulsars map[string]*core.Pulsar

	subs    map[int]func(Event)
	nextSub int
	metrics CountRecorder
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		pulsars: make(map[string]*core.Pulsar),
		subs:    make(map[int]func(Event)),
	}
}

// SetMetricsRecorder wires a gauge that tracks the catalog size.
func (kb *KnowledgeBase) SetMetricsRecorder(r CountRecorder) {
	kb.mu.Lock()
	kb.metrics = r
	n := len(kb.pulsars)
	kb.mu.Unlock()
	if r != nil {
		r.SetPulsarCount(n)
	}
}

// AddPulsar adds a record. It returns ErrPulsarExists if the name is taken.
func (kb *KnowledgeBase) AddPulsar(p *core.Pulsar) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("pulsar must have a name")
	}
	kb.mu.Lock()
	if _, exists := kb.pulsars[p.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrPulsarExists, p.Name)
	}
	kb.pulsars[p.Name] = p
	kb.notifyLocked(Event{Type: EventPulsarAdded, Name: p.Name, Frame: p.Frame()})
	return nil
}

// PutPulsar adds or replaces a record.
func (kb *KnowledgeBase) PutPulsar(p *core.Pulsar) {
	kb.mu.Lock()
	kb.pulsars[p.Name] = p
	kb.notifyLocked(Event{Type: EventPulsarAdded, Name: p.Name, Frame: p.Frame()})
}

// GetPulsar returns the record with the given name.
func (kb *KnowledgeBase) GetPulsar(name string) (*core.Pulsar, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.pulsars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPulsarNotFound, name)
	}
	return p, nil
}

// ListPulsars returns a snapshot of all records ordered by name.
func (kb *KnowledgeBase) ListPulsars() []*core.Pulsar {
	kb.mu.RLock()
	res := make([]*core.Pulsar, 0, len(kb.pulsars))
	for _, p := range kb.pulsars {
		res = append(res, p)
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Len reports the number of records.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.pulsars)
}

// RemovePulsar deletes a record.
func (kb *KnowledgeBase) RemovePulsar(name string) error {
	kb.mu.Lock()
	p, ok := kb.pulsars[name]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrPulsarNotFound, name)
	}
	delete(kb.pulsars, name)
	kb.notifyLocked(Event{Type: EventPulsarRemoved, Name: name, Frame: p.Frame()})
	return nil
}

// UpdateProperMotion replaces a record's proper motion (and covariance, nil
// when unknown) expressed in frame f, then notifies subscribers.
func (kb *KnowledgeBase) UpdateProperMotion(name string, f model.Frame, pm model.ProperMotion, cov *model.Cov2) error {
	p, err := kb.GetPulsar(name)
	if err != nil {
		return err
	}
	if err := p.SetProperMotion(f, pm, cov); err != nil {
		return fmt.Errorf("pulsar %q: %w", name, err)
	}

	kb.mu.Lock()
	kb.notifyLocked(Event{Type: EventProperMotionUpdated, Name: name, Frame: f})
	return nil
}

// notifyLocked must be entered with kb.mu held; it releases the lock before
// running subscribers so callbacks may call back into the KB.
func (kb *KnowledgeBase) notifyLocked(e Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	metrics := kb.metrics
	n := len(kb.pulsars)
	kb.mu.Unlock()

	if metrics != nil {
		metrics.SetPulsarCount(n)
	}
	for _, sub := range subs {
		sub(e)
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
