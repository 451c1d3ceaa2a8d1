// Package catalog provides the recipe catalog that candidate retrieval
// draws from. Catalogs are loaded from a YAML file at startup and are
// immutable afterwards.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/planweaver/planweaver/mealplan"
)

// Meal types recognized by the catalog.
var mealTypes = map[string]bool{
	"breakfast": true,
	"lunch":     true,
	"dinner":    true,
}

// Catalog is an immutable set of recipes.
type Catalog struct {
	recipes []mealplan.Recipe
}

type catalogFile struct {
	Recipes []mealplan.Recipe `yaml:"recipes"`
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	return New(file.Recipes)
}

// New builds a catalog from recipes, validating each entry.
func New(recipes []mealplan.Recipe) (*Catalog, error) {
	seen := make(map[string]bool, len(recipes))
	for i, r := range recipes {
		if r.ID == "" || r.Name == "" {
			return nil, fmt.Errorf("recipe %d: id and name are required", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("recipe %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if !mealTypes[r.MealType] {
			return nil, fmt.Errorf("recipe %q: unknown meal_type %q", r.ID, r.MealType)
		}
		if len(r.Ingredients) == 0 {
			return nil, fmt.Errorf("recipe %q: at least one ingredient is required", r.ID)
		}
	}
	return &Catalog{recipes: recipes}, nil
}

// All returns every recipe in catalog order.
func (c *Catalog) All() []mealplan.Recipe {
	out := make([]mealplan.Recipe, len(c.recipes))
	copy(out, c.recipes)
	return out
}

// Len returns the number of recipes.
func (c *Catalog) Len() int { return len(c.recipes) }

// Candidates returns the recipes compatible with a profile, in catalog
// order. Recipes containing an allergen are excluded; when dietary
// preferences are present (run-level preferences override the profile's)
// only recipes tagged with every preference are kept.
func (c *Catalog) Candidates(profile mealplan.Profile, preferences []string) []mealplan.Recipe {
	prefs := preferences
	if len(prefs) == 0 {
		prefs = profile.DietaryPreferences
	}

	var out []mealplan.Recipe
	for _, r := range c.recipes {
		if containsAllergen(r, profile.Allergies) {
			continue
		}
		if !hasTags(r, prefs) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func containsAllergen(r mealplan.Recipe, allergies []string) bool {
	for _, a := range allergies {
		needle := strings.ToLower(a)
		for _, ing := range r.Ingredients {
			if strings.Contains(strings.ToLower(ing.Name), needle) {
				return true
			}
		}
	}
	return false
}

func hasTags(r mealplan.Recipe, tags []string) bool {
	for _, want := range tags {
		found := false
		for _, tag := range r.Tags {
			if strings.EqualFold(tag, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
