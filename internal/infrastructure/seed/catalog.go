// Package seed ships the versioned achievement catalog and applies it to the
// store. The store copy is the only catalog the engine evaluates against.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

//go:embed achievements.yaml
var catalogYAML []byte

// Catalog is the decoded seed file.
type Catalog struct {
	Version      int     `yaml:"version"`
	Achievements []Entry `yaml:"achievements"`
}

// Entry is one achievement as written in YAML.
type Entry struct {
	Key          string `yaml:"key"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	XPValue      int    `yaml:"xp_value"`
	Category     string `yaml:"category"`
	TierRequired string `yaml:"tier_required"`
	Hidden       bool   `yaml:"hidden"`
	SortOrder    int    `yaml:"sort_order"`
	Rule         struct {
		Trigger   string   `yaml:"trigger"`
		MinStreak int      `yaml:"min_streak"`
		MinCount  int      `yaml:"min_count"`
		Book      string   `yaml:"book"`
		Chapter   int      `yaml:"chapter"`
		Books     []string `yaml:"books"`
	} `yaml:"rule"`
}

// Load decodes the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(catalogYAML)
}

// Parse decodes a catalog document. Unknown fields are rejected so typos in
// rule names do not silently produce an unreachable achievement.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed: empty catalog")
		}
		return nil, fmt.Errorf("seed: decode catalog: %w", err)
	}
	if c.Version <= 0 {
		return nil, errors.New("seed: catalog version must be positive")
	}
	return &c, nil
}

// Definitions converts and validates the entries.
func (c *Catalog) Definitions() ([]progression.AchievementDef, error) {
	seen := make(map[string]struct{}, len(c.Achievements))
	defs := make([]progression.AchievementDef, 0, len(c.Achievements))

	for _, e := range c.Achievements {
		if _, dup := seen[e.Key]; dup {
			return nil, fmt.Errorf("seed: duplicate achievement key %q", e.Key)
		}
		seen[e.Key] = struct{}{}

		def := progression.AchievementDef{
			Key:          e.Key,
			Name:         e.Name,
			Description:  e.Description,
			XPValue:      e.XPValue,
			Category:     e.Category,
			TierRequired: e.TierRequired,
			Hidden:       e.Hidden,
			SortOrder:    e.SortOrder,
			Rule: progression.Rule{
				Trigger:   progression.TriggerKind(e.Rule.Trigger),
				MinStreak: e.Rule.MinStreak,
				MinCount:  e.Rule.MinCount,
				Book:      e.Rule.Book,
				Chapter:   e.Rule.Chapter,
				Books:     e.Rule.Books,
			},
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Apply inserts any catalog entries missing from the store.
func Apply(ctx context.Context, repo progression.AchievementRepository, log *logger.Logger) (int, error) {
	catalog, err := Load()
	if err != nil {
		return 0, err
	}
	defs, err := catalog.Definitions()
	if err != nil {
		return 0, err
	}

	inserted, err := repo.SeedAchievementDefs(ctx, defs)
	if err != nil {
		return 0, fmt.Errorf("seed: apply catalog v%d: %w", catalog.Version, err)
	}

	if log != nil {
		log.Info("achievement catalog seeded",
			logger.Int("version", catalog.Version),
			logger.Int("definitions", len(defs)),
			logger.Int("inserted", inserted),
		)
	}
	return inserted, nil
}
