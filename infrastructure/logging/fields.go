package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for investigation logging.

// HypothesisID adds a hypothesis id field.
func HypothesisID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("hypothesis_id", id)
	}
}

// TargetState adds a target state id field.
func TargetState(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("target_state", id)
	}
}

// Level adds an evidence level field.
func Level(level string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("level", level)
	}
}

// FromLevel adds a from_level field for ladder transitions.
func FromLevel(level string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_level", level)
	}
}

// ToLevel adds a to_level field for ladder transitions.
func ToLevel(level string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_level", level)
	}
}

// Tick adds the decision loop iteration field.
func Tick(n uint64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Uint64("tick", n)
	}
}

// Phase adds the investigation phase field.
func Phase(phase string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("phase", phase)
	}
}

// Rule adds the matched decision rule field.
func Rule(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("rule", name)
	}
}

// Action adds the executed action field.
func Action(kind string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("action", kind)
	}
}

// Lens adds an analysis lens field.
func Lens(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("lens", id)
	}
}

// RegionClass adds a convergence region class field.
func RegionClass(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("region_class", id)
	}
}

// Anchor adds a probe anchor field.
func Anchor(anchor string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("anchor", anchor)
	}
}

// ProbeStatus adds a probe status field.
func ProbeStatus(status string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("probe_status", status)
	}
}

// Operator adds a mutation operator field.
func Operator(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operator", id)
	}
}

// CheckpointRef adds a checkpoint ref field.
func CheckpointRef(ref string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("checkpoint_ref", ref)
	}
}

// StallCounter adds the stall counter field.
func StallCounter(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("stall_counter", n)
	}
}

// FindingID adds a finding id field.
func FindingID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("finding_id", id)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an int field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}
