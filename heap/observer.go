package heap

import (
	"github.com/deepnoodle-ai/vmgc/object"
)

// Trigger describes why a collection ran.
type Trigger uint8

const (
	// TriggerExplicit is a collection requested through Collect or
	// CollectFrom.
	TriggerExplicit Trigger = iota

	// TriggerPressure is a collection forced by an allocation that did not
	// fit in the remaining capacity.
	TriggerPressure

	// TriggerStress is a collection run before an allocation because the
	// heap was created WithStressCollect.
	TriggerStress
)

func (t Trigger) String() string {
	switch t {
	case TriggerExplicit:
		return "explicit"
	case TriggerPressure:
		return "pressure"
	case TriggerStress:
		return "stress"
	default:
		return "unknown"
	}
}

// Observer is an interface for observing heap events. Implementations can be
// used for allocation profiling or for tracing collector activity.
//
// Implementations can embed NoOpObserver to provide default no-op
// implementations for methods they don't need.
type Observer interface {
	// OnAllocate is called after an allocation succeeds.
	OnAllocate(event AllocateEvent)

	// OnCollect is called after every collection cycle.
	OnCollect(event CollectEvent)
}

// AllocateEvent contains information about a single allocation.
type AllocateEvent struct {
	// ID is the identity of the new allocation.
	ID object.ID

	// Type is the runtime tag of the new allocation.
	Type object.Type

	// Size is the number of bytes charged, including the header.
	Size int

	// Used is the number of bytes in use after the allocation.
	Used int
}

// CollectEvent contains information about a finished collection.
type CollectEvent struct {
	// Trigger is the reason the collection ran.
	Trigger Trigger

	// Stats describes what the collection did.
	Stats CollectStats

	// Err aggregates finalizer failures, if any.
	Err error
}

// NoOpObserver provides no-op implementations of all Observer methods.
type NoOpObserver struct{}

func (NoOpObserver) OnAllocate(event AllocateEvent) {}

func (NoOpObserver) OnCollect(event CollectEvent) {}
