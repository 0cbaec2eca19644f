package main

import "testing"

func TestApplyDeltaClampsEveryWrite(t *testing.T) {
	var tv TraitVector
	for i := 0; i < 20; i++ {
		tv.ApplyDelta(TraitDelta{traitEmpathy: 3, traitFear: -5})
	}
	if tv.Empathy != traitMax {
		t.Fatalf("empathy should clamp at %d, got %d", traitMax, tv.Empathy)
	}
	if tv.Fear != traitMin {
		t.Fatalf("fear should clamp at %d, got %d", traitMin, tv.Fear)
	}

	tv.ApplyDelta(TraitDelta{traitCourage: 1000, traitDishonesty: -1000})
	if tv.Courage != traitMax || tv.Dishonesty != traitMin {
		t.Fatalf("large deltas should clamp, got courage=%d dishonesty=%d", tv.Courage, tv.Dishonesty)
	}
}

func TestApplyDeltaIgnoresUnknownKeysAndLeavesOthersUntouched(t *testing.T) {
	tv := TraitVector{Empathy: 4, Fear: 3}
	tv.ApplyDelta(TraitDelta{"honesty": 5, traitEmpathy: 1})
	if tv.Empathy != 5 {
		t.Fatalf("known key should apply, got empathy=%d", tv.Empathy)
	}
	if tv.Fear != 3 {
		t.Fatalf("untouched trait changed, got fear=%d", tv.Fear)
	}
	if tv != (TraitVector{Empathy: 5, Fear: 3}) {
		t.Fatalf("unknown key should be a no-op, got %+v", tv)
	}
}

func TestDeriveScoreIsPureAndMatchesFormula(t *testing.T) {
	tv := TraitVector{Empathy: 3, Responsibility: 2, Courage: 1, Fear: 1, Selfishness: 0, Dishonesty: 0}
	if got := deriveScore(tv); got != 5 {
		t.Fatalf("deriveScore = %d, want 5", got)
	}
	if first, second := deriveScore(tv), deriveScore(tv); first != second {
		t.Fatalf("deriveScore not deterministic: %d vs %d", first, second)
	}
	neg := TraitVector{Fear: 10, Selfishness: 10, Dishonesty: 10}
	if got := deriveScore(neg); got != -30 {
		t.Fatalf("deriveScore all-negative = %d, want -30", got)
	}
}

func TestNormalizedClampsOutOfRangeInput(t *testing.T) {
	tv := TraitVector{Empathy: 99, Fear: -7, Courage: 5}
	norm := tv.Normalized()
	if norm.Empathy != traitMax || norm.Fear != traitMin || norm.Courage != 5 {
		t.Fatalf("Normalized() = %+v", norm)
	}
	if tv.Empathy != 99 {
		t.Fatalf("Normalized should not mutate the receiver, got %+v", tv)
	}
}

func TestTaskSetIdempotentCompletion(t *testing.T) {
	ts := TaskSet{}
	if ts.Completed("libraryTask") {
		t.Fatalf("unknown task should default to false")
	}
	if !ts.MarkCompleted("libraryTask") {
		t.Fatalf("first completion should report newly set")
	}
	if ts.MarkCompleted("libraryTask") {
		t.Fatalf("second completion should be a no-op")
	}
	if !ts.Completed("libraryTask") {
		t.Fatalf("task should stay completed")
	}

	ts.Reset()
	if ts.Completed("libraryTask") {
		t.Fatalf("reset should clear all flags")
	}
}

func TestTaskSetCopyIsIndependent(t *testing.T) {
	ts := TaskSet{"cafeTask": true}
	cp := ts.Copy()
	cp.MarkCompleted("gardenTask")
	if ts.Completed("gardenTask") {
		t.Fatalf("copy should not alias the original")
	}
	if !cp.Completed("cafeTask") {
		t.Fatalf("copy should carry existing flags")
	}
}

func TestTraitVectorReset(t *testing.T) {
	tv := TraitVector{Empathy: 5, Dishonesty: 2}
	tv.Reset()
	if tv != (TraitVector{}) {
		t.Fatalf("reset should zero all traits, got %+v", tv)
	}
}

func TestDefaultProgressRecord(t *testing.T) {
	rec := defaultProgressRecord()
	if rec.Traits != (TraitVector{}) {
		t.Fatalf("default traits should be zero, got %+v", rec.Traits)
	}
	if rec.CompletedTasks == nil || len(rec.CompletedTasks) != 0 {
		t.Fatalf("default tasks should be empty non-nil, got %+v", rec.CompletedTasks)
	}
}
