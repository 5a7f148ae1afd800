package assets

import (
	"embed"
)

//go:embed monsters.json
var FS embed.FS

// MonstersJSON returns the embedded default candidate dataset.
func MonstersJSON() ([]byte, error) {
	return FS.ReadFile("monsters.json")
}
