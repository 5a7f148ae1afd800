// internal/compare/compare.go
//
// Pure attribute comparator for guess feedback.
// Responsibilities:
//   - Map a (guessed, target) pair to per-attribute verdicts.
//   - Numeric attributes: exact-match cell plus a higher/lower hint when off.
//   - Set-valued attributes (types, abilities, egg groups): full match,
//     partial overlap, or no overlap by set intersection.
//   - Composite debut attribute: full match when generation and title both
//     match, partial when only the generation matches, otherwise a miss with
//     a higher/lower hint on the generation.
//
// The comparator is pure, total, and order-independent. Correctness of a
// guess is decided elsewhere by identity comparison of entity ids; this
// package only colors the feedback rows.
package compare

import (
	"github.com/samber/lo"

	"github.com/monguess/go-server/internal/dex"
)

// Cell is the evaluation result for a single attribute.
// Possible values:
//   - "match":   attribute equals the target's.
//   - "partial": set attributes only; some but not full overlap.
//   - "miss":    no match.
type Cell string

const (
	CellMatch   Cell = "match"
	CellPartial Cell = "partial"
	CellMiss    Cell = "miss"
)

// Hint indicates where the target's value lies relative to the guess.
type Hint string

const (
	HintNone   Hint = ""
	HintHigher Hint = "higher" // target value is greater than the guessed one
	HintLower  Hint = "lower"  // target value is smaller than the guessed one
)

// NumericCell pairs a cell verdict with a directional hint.
type NumericCell struct {
	Cell Cell `json:"cell"`
	Hint Hint `json:"hint,omitempty"`
}

// Result holds the per-attribute verdicts for one guess.
type Result struct {
	Debut          NumericCell `json:"debut"`
	Types          Cell        `json:"types"`
	Abilities      Cell        `json:"abilities"`
	EggGroups      Cell        `json:"eggGroups"`
	Height         NumericCell `json:"height"`
	Weight         NumericCell `json:"weight"`
	TotalStats     NumericCell `json:"totalStats"`
	EvolutionCount Cell        `json:"evolutionCount"`
	GenderRate     Cell        `json:"genderRate"`
}

// Compare produces the full attribute verdict for a guess against the target.
func Compare(guessed, target dex.Monster) Result {
	return Result{
		Debut: compareDebut(guessed.DebutGen, guessed.DebutTitle, target.DebutGen, target.DebutTitle),
		Types: compareSets(
			[]string{guessed.Type1, guessed.Type2},
			[]string{target.Type1, target.Type2},
		),
		Abilities: compareSets(
			[]string{guessed.Ability1, guessed.Ability2, guessed.HiddenAbility},
			[]string{target.Ability1, target.Ability2, target.HiddenAbility},
		),
		EggGroups: compareSets(
			[]string{guessed.EggGroup1, guessed.EggGroup2},
			[]string{target.EggGroup1, target.EggGroup2},
		),
		Height:         compareNumeric(guessed.Height, target.Height),
		Weight:         compareNumeric(guessed.Weight, target.Weight),
		TotalStats:     compareNumeric(float64(guessed.TotalStats()), float64(target.TotalStats())),
		EvolutionCount: equalityCell(guessed.EvolutionCount == target.EvolutionCount),
		GenderRate:     equalityCell(guessed.GenderRate == target.GenderRate),
	}
}

// compareNumeric reports match on equality, otherwise a miss with the
// direction of the target relative to the guess.
func compareNumeric(guessed, target float64) NumericCell {
	switch {
	case guessed == target:
		return NumericCell{Cell: CellMatch}
	case guessed < target:
		return NumericCell{Cell: CellMiss, Hint: HintHigher}
	default:
		return NumericCell{Cell: CellMiss, Hint: HintLower}
	}
}

// compareSets evaluates set-valued attributes by intersection size.
// Empty strings are not members; an empty target set matches only an empty
// guessed set.
func compareSets(guessed, target []string) Cell {
	g := lo.Uniq(lo.Filter(guessed, func(s string, _ int) bool { return s != "" }))
	c := lo.Uniq(lo.Filter(target, func(s string, _ int) bool { return s != "" }))

	if len(c) == 0 {
		return equalityCell(len(g) == 0)
	}
	if len(g) == 0 {
		return CellMiss
	}

	inter := len(lo.Intersect(g, c))
	switch {
	case len(g) == len(c) && inter == len(c):
		return CellMatch
	case inter > 0:
		return CellPartial
	default:
		return CellMiss
	}
}

// compareDebut evaluates the composite generation/title attribute.
// Generation zero means unknown and always yields a hintless miss.
func compareDebut(gGen int, gTitle string, cGen int, cTitle string) NumericCell {
	if gGen == 0 || cGen == 0 {
		return NumericCell{Cell: CellMiss}
	}
	if gGen == cGen {
		if gTitle == cTitle {
			return NumericCell{Cell: CellMatch}
		}
		return NumericCell{Cell: CellPartial}
	}
	cell := compareNumeric(float64(gGen), float64(cGen))
	return NumericCell{Cell: CellMiss, Hint: cell.Hint}
}

// equalityCell maps a boolean equality check to match/miss.
func equalityCell(equal bool) Cell {
	if equal {
		return CellMatch
	}
	return CellMiss
}
