// Package hypothesis provides the core domain model for the investigation
// engine: target states, hypotheses, and the evidence ladder.
package hypothesis

// EvidenceLevel represents the strength of evidence behind a hypothesis.
// Levels are identified by stable strings, not behavioral definitions.
type EvidenceLevel string

// Ladder levels and terminal outcomes.
const (
	LevelModeled   EvidenceLevel = "modeled"   // E0: route sketched on the model only
	LevelObserved  EvidenceLevel = "observed"  // E1: preconditions observed on the target
	LevelFalsified EvidenceLevel = "falsified" // E2: probe produced a measurable delta
	LevelPromoted  EvidenceLevel = "promoted"  // E3: reproduced against the promotion anchor
	LevelDisproved EvidenceLevel = "disproved" // Probe ran and returned a negative result
	LevelBlocked   EvidenceLevel = "blocked"   // Gating precondition failed
	LevelUnknown   EvidenceLevel = "unknown"   // Probe execution failed; not a disproof
)

// ladderRank orders the forward ladder. Terminal outcomes have no rank.
var ladderRank = map[EvidenceLevel]int{
	LevelModeled:   0,
	LevelObserved:  1,
	LevelFalsified: 2,
	LevelPromoted:  3,
}

// IsTerminal returns true for outcomes that end a hypothesis's advancement.
func (l EvidenceLevel) IsTerminal() bool {
	return l == LevelPromoted || l == LevelDisproved || l == LevelBlocked
}

// OnLadder returns true if the level is one of E0..E3.
func (l EvidenceLevel) OnLadder() bool {
	_, ok := ladderRank[l]
	return ok
}

// Rank returns the ladder position (0..3) and whether the level is on the
// ladder at all.
func (l EvidenceLevel) Rank() (int, bool) {
	r, ok := ladderRank[l]
	return r, ok
}

// IsValid returns true if the level is a recognized level.
func (l EvidenceLevel) IsValid() bool {
	switch l {
	case LevelModeled, LevelObserved, LevelFalsified, LevelPromoted,
		LevelDisproved, LevelBlocked, LevelUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the level.
func (l EvidenceLevel) String() string {
	return string(l)
}

// AllLevels returns every recognized evidence level.
func AllLevels() []EvidenceLevel {
	return []EvidenceLevel{
		LevelModeled,
		LevelObserved,
		LevelFalsified,
		LevelPromoted,
		LevelDisproved,
		LevelBlocked,
		LevelUnknown,
	}
}

// Upgraded reports whether a transition from one level to another counts as
// an evidence upgrade for stall accounting. Only forward movement on the
// ladder counts; terminal outcomes and Unknown do not.
func Upgraded(from, to EvidenceLevel) bool {
	fr, fok := from.Rank()
	tr, tok := to.Rank()
	return fok && tok && tr > fr
}
