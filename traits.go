package main

const (
	traitMin = 0
	traitMax = 10
)

const (
	traitEmpathy        = "empathy"
	traitResponsibility = "responsibility"
	traitCourage        = "courage"
	traitFear           = "fear"
	traitSelfishness    = "selfishness"
	traitDishonesty     = "dishonesty"
)

// TraitVector holds the six disposition values for one player.
// Every value stays inside [traitMin, traitMax]; writes clamp, never reject.
type TraitVector struct {
	Empathy        int `json:"empathy"`
	Responsibility int `json:"responsibility"`
	Courage        int `json:"courage"`
	Fear           int `json:"fear"`
	Selfishness    int `json:"selfishness"`
	Dishonesty     int `json:"dishonesty"`
}

// TraitDelta is a partial trait adjustment attached to a dilemma choice.
// Keys that do not name a known trait are ignored.
type TraitDelta map[string]int

func (tv *TraitVector) field(name string) *int {
	switch name {
	case traitEmpathy:
		return &tv.Empathy
	case traitResponsibility:
		return &tv.Responsibility
	case traitCourage:
		return &tv.Courage
	case traitFear:
		return &tv.Fear
	case traitSelfishness:
		return &tv.Selfishness
	case traitDishonesty:
		return &tv.Dishonesty
	}
	return nil
}

// ApplyDelta adjusts every trait named in the delta and clamps the result.
// Traits absent from the delta are untouched; unknown keys are skipped.
func (tv *TraitVector) ApplyDelta(d TraitDelta) {
	for name, dv := range d {
		if p := tv.field(name); p != nil {
			*p = clampInt(*p+dv, traitMin, traitMax)
		}
	}
}

// Normalized returns a copy with every value clamped into range, used when
// serializing traits that arrived from outside.
func (tv TraitVector) Normalized() TraitVector {
	return TraitVector{
		Empathy:        clampInt(tv.Empathy, traitMin, traitMax),
		Responsibility: clampInt(tv.Responsibility, traitMin, traitMax),
		Courage:        clampInt(tv.Courage, traitMin, traitMax),
		Fear:           clampInt(tv.Fear, traitMin, traitMax),
		Selfishness:    clampInt(tv.Selfishness, traitMin, traitMax),
		Dishonesty:     clampInt(tv.Dishonesty, traitMin, traitMax),
	}
}

func (tv *TraitVector) Reset() {
	*tv = TraitVector{}
}

// deriveScore recomputes the displayed virtue score from the trait vector.
// The score is never stored or accumulated; recomputing keeps it consistent
// with the authoritative traits even if past deltas were inconsistent.
func deriveScore(tv TraitVector) int {
	return (tv.Empathy + tv.Responsibility + tv.Courage) -
		(tv.Fear + tv.Selfishness + tv.Dishonesty)
}

// TaskSet records which one-time dilemmas a player has resolved.
type TaskSet map[string]bool

func (ts TaskSet) Completed(taskID string) bool {
	return ts[taskID]
}

// MarkCompleted sets the flag and reports whether it was newly set.
// Marking an already-completed task is a no-op.
func (ts TaskSet) MarkCompleted(taskID string) bool {
	if ts[taskID] {
		return false
	}
	ts[taskID] = true
	return true
}

func (ts TaskSet) Reset() {
	for k := range ts {
		delete(ts, k)
	}
}

func (ts TaskSet) Copy() TaskSet {
	out := make(TaskSet, len(ts))
	for k, v := range ts {
		out[k] = v
	}
	return out
}

// ProgressRecord is the durable {traits, completedTasks} pair for one
// storage key. Saves overwrite it wholesale; there is no merge.
type ProgressRecord struct {
	Traits         TraitVector `json:"traits"`
	CompletedTasks TaskSet     `json:"completedTasks"`
}

func defaultProgressRecord() ProgressRecord {
	return ProgressRecord{CompletedTasks: TaskSet{}}
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
