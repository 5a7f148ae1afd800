// internal/dex/dex.go
//
// Candidate pool management for the guessing game.
//
// Responsibilities:
//   - Load the monster dataset from an environment-provided file or fall back
//     to the embedded default.
//   - Maintain the stable, name-sorted candidate order every client relies on.
//   - Supply lookup helpers (by name, by id), random picks, and counts.
//
// Initialization behavior (Init):
//   1. If DEX_FILE is set, load the dataset from that path.
//   2. Otherwise fall back to the embedded `monsters.json`.
//
// Environment variables:
//   DEX_FILE=/path/to/monsters.json
//
// Constraints:
//   • Entries must carry a non-empty name and a positive id.
//   • Names are unique within the pool.
//   • Initialization is run once (sync.Once).

package dex

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/monguess/go-server/assets"
)

// Stats holds the six base stats of a monster.
type Stats struct {
	HP        int `json:"hp"`
	Attack    int `json:"attack"`
	Defense   int `json:"defense"`
	SpAttack  int `json:"spAttack"`
	SpDefense int `json:"spDefense"`
	Speed     int `json:"speed"`
}

// Monster is one candidate entity in the guessing pool.
type Monster struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Type1          string  `json:"type1"`
	Type2          string  `json:"type2"`
	Ability1       string  `json:"ability1"`
	Ability2       string  `json:"ability2"`
	HiddenAbility  string  `json:"hiddenAbility"`
	EggGroup1      string  `json:"eggGroup1"`
	EggGroup2      string  `json:"eggGroup2"`
	Stats          Stats   `json:"stats"`
	Height         float64 `json:"height"`
	Weight         float64 `json:"weight"`
	DebutGen       int     `json:"debutGen"`
	DebutTitle     string  `json:"debutTitle"`
	EvolutionCount int     `json:"evolutionCount"`
	GenderRate     int     `json:"genderRate"`
}

// TotalStats is the base stat total used for numeric comparison.
func (m Monster) TotalStats() int {
	return m.Stats.HP + m.Stats.Attack + m.Stats.Defense +
		m.Stats.SpAttack + m.Stats.SpDefense + m.Stats.Speed
}

// dataset matches the on-disk/embedded JSON shape.
type dataset struct {
	Monsters []Monster `json:"monsters"`
	Metadata struct {
		Total       int    `json:"total"`
		Version     string `json:"version"`
		Description string `json:"description"`
	} `json:"metadata"`
}

var (
	initOnce   sync.Once
	pool       []Monster          // sorted by name
	sortedName []string           // names in pool order
	byName     map[string]Monster // keyed by normalized name
	byID       map[int]Monster
	initialErr error
)

// Init loads the candidate pool exactly once.
// Returns an error if the pool ends up empty or malformed.
func Init() error {
	initOnce.Do(func() {
		var raw []byte
		var err error

		if path := os.Getenv("DEX_FILE"); path != "" {
			raw, err = os.ReadFile(path)
		} else {
			raw, err = assets.MonstersJSON()
		}
		if err != nil {
			initialErr = err
			return
		}

		var ds dataset
		if err := json.Unmarshal(raw, &ds); err != nil {
			initialErr = fmt.Errorf("dex: decode dataset: %w", err)
			return
		}
		initialErr = load(ds.Monsters)
	})
	return initialErr
}

// load installs a candidate list, validating and sorting it. Split out from
// Init so tests can install small pools.
func load(list []Monster) error {
	if len(list) == 0 {
		return errors.New("dex: candidate pool is empty")
	}

	seen := make(map[string]struct{}, len(list))
	for _, m := range list {
		if m.Name == "" || m.ID <= 0 {
			return fmt.Errorf("dex: invalid entry (id=%d name=%q)", m.ID, m.Name)
		}
		key := Normalize(m.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("dex: duplicate name %q", m.Name)
		}
		seen[key] = struct{}{}
	}

	sorted := append([]Monster{}, list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	pool = sorted
	sortedName = lo.Map(sorted, func(m Monster, _ int) string { return m.Name })
	byName = lo.Associate(sorted, func(m Monster) (string, Monster) {
		return Normalize(m.Name), m
	})
	byID = lo.Associate(sorted, func(m Monster) (int, Monster) {
		return m.ID, m
	})
	return nil
}

// Reset installs a caller-provided pool, bypassing Init. Test hook.
func Reset(list []Monster) error {
	initOnce.Do(func() {})
	initialErr = load(list)
	return initialErr
}

// Normalize canonicalizes a monster name for lookup: lowercase with
// spaces, separators, and punctuation commonly typed differently removed.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '　', '-', '‐', '‒', '–', '—', '.', '\'', ':', '·':
			return -1
		}
		return r
	}, s)
}

// Names returns the candidate names in the stable sorted order.
// Callers must not mutate the returned slice.
func Names() []string {
	return sortedName
}

// ByName resolves a (possibly loosely typed) name to a monster.
func ByName(name string) (Monster, bool) {
	m, ok := byName[Normalize(name)]
	return m, ok
}

// ByID resolves a dex id to a monster.
func ByID(id int) (Monster, bool) {
	m, ok := byID[id]
	return m, ok
}

// At returns the monster at the given index of the sorted pool.
func At(i int) Monster {
	return pool[i]
}

// Count returns the number of candidates in the pool.
func Count() int {
	return len(pool)
}

// Random returns a cryptographically random candidate.
// Falls back to the first entry if entropy is unavailable.
func Random() Monster {
	if len(pool) == 0 {
		return Monster{}
	}
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return pool[0]
	}
	return pool[nBig.Int64()]
}
