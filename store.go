package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const anonymousScopeKey = "vv:progress:anon"

// PlayerProgress is the live game state for one storage key: the trait
// vector and the set of resolved dilemmas. It is the authoritative state
// while the server runs; the repository is the durable copy.
type PlayerProgress struct {
	Key    string
	UserID int64
	Traits TraitVector
	Tasks  TaskSet
}

// Store holds all in-memory server state behind one mutex. Handlers lock it
// for their full duration so every read and write stays consistent.
type Store struct {
	mu sync.Mutex

	Progress   map[string]*PlayerProgress
	ToastByKey map[string]string

	sessions *SessionManager
	repo     *SQLRepository
}

func newStore() *Store {
	return &Store{
		Progress:   map[string]*PlayerProgress{},
		ToastByKey: map[string]string{},
		sessions:   newSessionManager(sessionTTL),
	}
}

// progressStorageKey derives the durable storage key for an identity.
// Distinct users never collide; a nil identity falls back to the fixed
// anonymous scope.
func progressStorageKey(identity *UserIdentity) string {
	if identity == nil || identity.ID == 0 {
		return anonymousScopeKey
	}
	return fmt.Sprintf("vv:progress:%d", identity.ID)
}

// ensureProgressLocked returns the live progress for an identity, loading
// the durable record on first touch. A missing or unreadable record falls
// open to a fresh default; an unresolved identity plays in the anonymous
// scope with a visible note.
func ensureProgressLocked(store *Store, identity *UserIdentity) *PlayerProgress {
	key := progressStorageKey(identity)
	if pp := store.Progress[key]; pp != nil {
		return pp
	}
	if identity == nil {
		log.Printf("progress: no identity resolved, using anonymous scope")
	}
	rec := defaultProgressRecord()
	if store.repo != nil {
		loaded, err := store.repo.LoadProgress(context.Background(), key)
		if err != nil {
			log.Printf("load progress %s failed, starting fresh: %v", key, err)
		} else {
			rec = loaded
		}
	}
	pp := &PlayerProgress{Key: key, Traits: rec.Traits.Normalized(), Tasks: rec.CompletedTasks}
	if pp.Tasks == nil {
		pp.Tasks = TaskSet{}
	}
	if identity != nil {
		pp.UserID = identity.ID
	}
	store.Progress[key] = pp
	return pp
}

// persistProgressLocked writes the durable copy of one player's progress.
// Failures are logged and swallowed: the in-memory state stays
// authoritative and play continues, it just won't survive a restart.
func persistProgressLocked(store *Store, pp *PlayerProgress) {
	if store.repo == nil || pp == nil {
		return
	}
	ctx := context.Background()
	rec := ProgressRecord{Traits: pp.Traits.Normalized(), CompletedTasks: pp.Tasks.Copy()}
	if err := store.repo.SaveProgress(ctx, pp.Key, rec); err != nil {
		log.Printf("persist progress %s failed: %v", pp.Key, err)
	}
	if pp.UserID != 0 {
		if err := store.repo.UpsertTraits(ctx, pp.UserID, rec.Traits, time.Now().UTC()); err != nil {
			log.Printf("persist traits for user %d failed: %v", pp.UserID, err)
		}
	}
}

// dispatchChoiceLocked resolves a dilemma option and, when it mutated
// anything, schedules the save that keeps the task registry in sync with
// durable storage. Every mutation is followed by a save attempt.
func dispatchChoiceLocked(store *Store, pp *PlayerProgress, sceneID string, optionIndex int) (ChoiceOutcome, error) {
	outcome, err := applyChoiceLocked(pp, sceneID, optionIndex)
	if err != nil {
		return outcome, err
	}
	if outcome.Applied {
		persistProgressLocked(store, pp)
	}
	return outcome, nil
}

func setToastLocked(store *Store, key, text string) {
	store.ToastByKey[key] = text
}

func popToastLocked(store *Store, key string) string {
	msg := store.ToastByKey[key]
	delete(store.ToastByKey, key)
	return msg
}
