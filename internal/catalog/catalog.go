// Package catalog holds the shop's species list and the subscription tiers.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/isle-dino-bot/internal/domain"
)

//go:embed dinosaurs.yaml subscriptions.yaml
var defaultFiles embed.FS

const (
	dinosFile = "dinosaurs.yaml"
	tiersFile = "subscriptions.yaml"
)

type Dino struct {
	Name     string `yaml:"name"`
	Class    string `yaml:"class"`
	Price    int64  `yaml:"price"`
	Category string `yaml:"category"`
}

type Tier struct {
	Name             string `yaml:"name"`
	Price            int64  `yaml:"price"`
	DinoSlots        int    `yaml:"dino_slots"`
	DurationDays     int    `yaml:"duration_days"`
	AutoRenewDefault bool   `yaml:"auto_renew_default"`
	// RoleID is the guild role held while the tier is active. Optional.
	RoleID           string `yaml:"discord_role_id"`
}

func (t Tier) Duration() time.Duration { return time.Duration(t.DurationDays) * 24 * time.Hour }

type Catalog struct {
	dinos   []Dino
	byClass map[string]Dino
	tiers   []Tier
	byTier  map[string]Tier
}

// Load reads the embedded files. A file of the same name in overrideDir
// replaces the embedded one.
func Load(overrideDir string) (*Catalog, error) {
	var dinoDoc struct {
		Dinosaurs []Dino `yaml:"dinosaurs"`
	}
	if err := readYAML(overrideDir, dinosFile, &dinoDoc); err != nil {
		return nil, err
	}
	var tierDoc struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := readYAML(overrideDir, tiersFile, &tierDoc); err != nil {
		return nil, err
	}

	c := &Catalog{byClass: map[string]Dino{}, byTier: map[string]Tier{}}
	for _, d := range dinoDoc.Dinosaurs {
		if strings.TrimSpace(d.Class) == "" || d.Price <= 0 {
			return nil, fmt.Errorf("catalog: invalid dinosaur entry %+v", d)
		}
		key := domain.NormalizeSpecies(d.Class)
		if _, dup := c.byClass[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate class %s", d.Class)
		}
		c.byClass[key] = d
		c.dinos = append(c.dinos, d)
	}
	for _, t := range tierDoc.Tiers {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" || t.Price <= 0 || t.DurationDays <= 0 || t.DinoSlots < 0 {
			return nil, fmt.Errorf("catalog: invalid tier %+v", t)
		}
		if _, dup := c.byTier[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate tier %s", t.Name)
		}
		t.Name = key
		c.byTier[key] = t
		c.tiers = append(c.tiers, t)
	}
	sort.SliceStable(c.tiers, func(i, j int) bool { return c.tiers[i].Price < c.tiers[j].Price })
	return c, nil
}

func readYAML(overrideDir, name string, out any) error {
	var raw []byte
	var err error
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		raw, err = os.ReadFile(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", name, err)
		}
	}
	if raw == nil {
		raw, err = fs.ReadFile(defaultFiles, name)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", name, err)
		}
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (c *Catalog) Dinos() []Dino { return append([]Dino(nil), c.dinos...) }

// Dino looks a species up by class name, bare species name or display name.
func (c *Catalog) Dino(key string) (Dino, bool) {
	if d, ok := c.byClass[domain.NormalizeSpecies(key)]; ok {
		return d, true
	}
	for _, d := range c.dinos {
		if strings.EqualFold(d.Name, strings.TrimSpace(key)) {
			return d, true
		}
	}
	return Dino{}, false
}

// DisplayName returns the shop name for a class, or the bare species name.
func (c *Catalog) DisplayName(class string) string {
	if d, ok := c.byClass[domain.NormalizeSpecies(class)]; ok {
		return d.Name
	}
	return domain.SpeciesLabel(class)
}

// Tiers are ordered by price.
func (c *Catalog) Tiers() []Tier { return append([]Tier(nil), c.tiers...) }

func (c *Catalog) Tier(name string) (Tier, bool) {
	t, ok := c.byTier[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}
