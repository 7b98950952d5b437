// Package badges holds the static registry of badge definitions and the
// threshold arithmetic used to turn achievement values into levels and points.
package badges

import (
	"sort"

	"github.com/ashita-ai/kiroku/internal/model"
)

// Catalog is a read-only registry of badge definitions keyed by badge id.
// Safe for concurrent use once built.
type Catalog struct {
	defs map[string]model.BadgeDefinition
}

// NewCatalog builds a catalog from defs. Definitions that violate the
// threshold invariants are skipped; later duplicates replace earlier ones.
func NewCatalog(defs ...model.BadgeDefinition) *Catalog {
	c := &Catalog{defs: make(map[string]model.BadgeDefinition, len(defs))}
	for _, d := range defs {
		if d.BadgeID == "" || !d.Valid() {
			continue
		}
		c.defs[d.BadgeID] = d
	}
	return c
}

// Get returns the definition for badgeID and whether the catalog knows it.
func (c *Catalog) Get(badgeID string) (model.BadgeDefinition, bool) {
	d, ok := c.defs[badgeID]
	return d, ok
}

// Resolve returns the definition to use for badgeID. Catalog entries win,
// then a valid embedded definition from the achievement record, and finally
// the single-level, one-point default for badges the catalog has never seen.
func (c *Catalog) Resolve(badgeID string, embedded *model.BadgeDefinition) model.BadgeDefinition {
	if d, ok := c.Get(badgeID); ok {
		return d
	}
	if embedded != nil && embedded.Valid() {
		d := *embedded
		d.BadgeID = badgeID
		if d.Levels() > 1 {
			d.IsMultiLevel = true
		}
		return d
	}
	return Default(badgeID)
}

// All returns every definition sorted by badge id.
func (c *Catalog) All() []model.BadgeDefinition {
	out := make([]model.BadgeDefinition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out
}

// Len returns the number of known definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Default is the definition assumed for badge ids unknown to the catalog.
func Default(badgeID string) model.BadgeDefinition {
	return model.BadgeDefinition{
		BadgeID:        badgeID,
		IsMultiLevel:   false,
		Thresholds:     []float64{0},
		PointsPerLevel: []int{1},
	}
}

// LevelFor returns the highest level whose threshold is <= value, or 0 when
// value is below the first threshold.
func LevelFor(def model.BadgeDefinition, value float64) int {
	// Thresholds are strictly increasing, so the count of thresholds <= value
	// is the level.
	return sort.Search(len(def.Thresholds), func(i int) bool {
		return def.Thresholds[i] > value
	})
}

// PointsBetween sums PointsPerLevel for the levels gained going from level
// from to level to. Returns 0 when to <= from; never negative.
func PointsBetween(def model.BadgeDefinition, from, to int) int {
	if from < 0 {
		from = 0
	}
	if to > len(def.PointsPerLevel) {
		to = len(def.PointsPerLevel)
	}
	points := 0
	for i := from; i < to; i++ {
		points += def.PointsPerLevel[i]
	}
	return points
}

// CumulativePoints is the total points for holding level.
func CumulativePoints(def model.BadgeDefinition, level int) int {
	return PointsBetween(def, 0, level)
}
