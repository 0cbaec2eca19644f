package main

import "fmt"

// Choice is one selectable option in a dilemma. Delta is the full effect of
// the choice; older data that awarded raw points was converted to trait
// deltas when this catalog was written.
type Choice struct {
	Text   string
	Delta  TraitDelta
	Reason string
}

// Dilemma is a one-time moral choice bound to a scene and a task flag.
type Dilemma struct {
	SceneID       string
	SceneName     string
	TaskID        string
	Prompt        string
	Choices       []Choice
	CompletedNote string
}

// sceneOrder fixes the presentation order across the town.
var sceneOrder = []string{"library", "parking", "cafe", "garden", "apartment"}

var dilemmas = map[string]*Dilemma{
	"library": {
		SceneID:   "library",
		SceneName: "Library",
		TaskID:    "libraryTask",
		Prompt:    "A public computer is still signed in to a stranger's library account, their personal details on screen.",
		Choices: []Choice{
			{Text: "Log out quietly", Delta: TraitDelta{traitEmpathy: 2, traitResponsibility: 2}, Reason: "You protected a stranger's privacy."},
			{Text: "Ignore and walk away", Delta: TraitDelta{traitFear: 1, traitSelfishness: 1}, Reason: "You left the problem for someone else."},
			{Text: "Misuse their account", Delta: TraitDelta{traitSelfishness: 3, traitDishonesty: 2}, Reason: "You took advantage of their mistake."},
			{Text: "Inform the librarian", Delta: TraitDelta{traitResponsibility: 3, traitCourage: 1}, Reason: "You brought it to someone who could fix it."},
		},
		CompletedNote: "The terminal sits logged out and idle. You already dealt with this.",
	},
	"parking": {
		SceneID:   "parking",
		SceneName: "Parking Lot",
		TaskID:    "pocketTask",
		Prompt:    "A wallet lies on the asphalt, cash visible, and its owner is walking away across the lot.",
		Choices: []Choice{
			// The stray "honesty" key is carried from the original data;
			// unknown trait keys are ignored by ApplyDelta.
			{Text: "Pick up the wallet and return it to the person immediately", Delta: TraitDelta{traitEmpathy: 2, "honesty": 3}, Reason: "You returned it before they even noticed."},
			{Text: "Keep the money and return only the empty wallet", Delta: TraitDelta{traitSelfishness: 3, traitDishonesty: 2}, Reason: "You kept what wasn't yours."},
			{Text: "Ignore the wallet and walk away", Delta: TraitDelta{traitFear: 1, traitResponsibility: -1}, Reason: "You decided it wasn't your problem."},
			{Text: "Hand it to the parking attendant", Delta: TraitDelta{traitResponsibility: 3, traitCourage: 1}, Reason: "You made sure it reached safe hands."},
		},
		CompletedNote: "The spot where the wallet lay is empty now.",
	},
	"cafe": {
		SceneID:   "cafe",
		SceneName: "Cafe",
		TaskID:    "cafeTask",
		Prompt:    "A regular customer forgot his wallet and is being refused breakfast. The cashier shrugs: rules are rules.",
		Choices: []Choice{
			{Text: "Quietly pay for his meal", Delta: TraitDelta{traitEmpathy: 3, traitCourage: 1}, Reason: "You covered a stranger's breakfast."},
			{Text: "Vouch for him with the manager", Delta: TraitDelta{traitResponsibility: 2, traitCourage: 2}, Reason: "You stood up for him."},
			{Text: "Agree that rules are rules", Delta: TraitDelta{traitSelfishness: 1, traitFear: 1}, Reason: "You sided with the rulebook."},
			{Text: "Pretend not to notice", Delta: TraitDelta{traitFear: 2, traitSelfishness: 2}, Reason: "You kept your head down."},
		},
		CompletedNote: "The cafe hums along. That argument is long settled.",
	},
	"garden": {
		SceneID:   "garden",
		SceneName: "Garden",
		TaskID:    "gardenTask",
		Prompt:    "Someone is pulling flowers out of the community garden beds, stuffing them into a bag to sell.",
		Choices: []Choice{
			{Text: "Ask them to stop and explain the garden is shared", Delta: TraitDelta{traitCourage: 2, traitResponsibility: 2}, Reason: "You spoke up for the garden."},
			{Text: "Report it to the garden committee", Delta: TraitDelta{traitResponsibility: 3}, Reason: "You let the caretakers handle it."},
			{Text: "Look away and keep walking", Delta: TraitDelta{traitFear: 2, traitSelfishness: 1}, Reason: "You avoided the confrontation."},
			{Text: "Ask for a cut of the sale", Delta: TraitDelta{traitDishonesty: 3, traitSelfishness: 2}, Reason: "You joined in instead."},
		},
		CompletedNote: "The flower beds are intact. Nothing needs you here.",
	},
	"apartment": {
		SceneID:   "apartment",
		SceneName: "Apartment Hallway",
		TaskID:    "apartmentTask",
		Prompt:    "An elderly neighbour is locked out of his apartment and asks for your help finding the spare key.",
		Choices: []Choice{
			{Text: "Help him search for the spare key", Delta: TraitDelta{traitEmpathy: 2, traitResponsibility: 2}, Reason: "You stayed until he was back inside."},
			{Text: "Invite him to wait at your place", Delta: TraitDelta{traitEmpathy: 3, traitCourage: 1}, Reason: "You opened your door to him."},
			{Text: "Tell him you don't trust him", Delta: TraitDelta{traitFear: 2, traitSelfishness: 1}, Reason: "You turned him away out of suspicion."},
			{Text: "Apologise and hurry off", Delta: TraitDelta{traitFear: 1, traitSelfishness: 1}, Reason: "You didn't want to get involved."},
		},
		CompletedNote: "His door stands open; the hallway is quiet again.",
	},
}

func dilemmaForScene(sceneID string) *Dilemma {
	return dilemmas[sceneID]
}

// ChoiceOutcome reports what a dispatched choice did.
type ChoiceOutcome struct {
	Applied bool
	Text    string
	Score   int
}

// applyChoiceLocked is the single gameplay entry point: it resolves one
// dilemma option against a player's progress. A task that is already
// completed short-circuits to flavor text without re-applying any delta.
// Caller holds store.mu and is responsible for persisting afterwards.
func applyChoiceLocked(pp *PlayerProgress, sceneID string, optionIndex int) (ChoiceOutcome, error) {
	d := dilemmaForScene(sceneID)
	if d == nil {
		return ChoiceOutcome{}, fmt.Errorf("unknown scene %q", sceneID)
	}
	if pp.Tasks.Completed(d.TaskID) {
		return ChoiceOutcome{Applied: false, Text: d.CompletedNote, Score: deriveScore(pp.Traits)}, nil
	}
	if optionIndex < 0 || optionIndex >= len(d.Choices) {
		return ChoiceOutcome{}, fmt.Errorf("scene %q has no option %d", sceneID, optionIndex)
	}
	choice := d.Choices[optionIndex]
	pp.Traits.ApplyDelta(choice.Delta)
	pp.Tasks.MarkCompleted(d.TaskID)
	return ChoiceOutcome{Applied: true, Text: choice.Reason, Score: deriveScore(pp.Traits)}, nil
}
