package activities

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/planweaver/planweaver/engine"
	"github.com/planweaver/planweaver/logging"
	"github.com/planweaver/planweaver/mealplan"
)

// ComputeGroceryList consolidates the week's ingredients into a single
// shopping list. Deterministic given the plan and recipe set: the same
// input always produces the same items in the same order.
type ComputeGroceryList struct{}

func (a *ComputeGroceryList) Name() string { return mealplan.ActivityComputeGroceryList }

func (a *ComputeGroceryList) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in mealplan.GroceryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, engine.Permanentf("decoding input: %v", err)
	}

	byID := make(map[string]mealplan.Recipe, len(in.Recipes))
	for _, r := range in.Recipes {
		byID[r.ID] = r
	}

	type key struct {
		name string
		unit string
	}
	quantities := make(map[key]float64)
	costs := make(map[key]float64)
	display := make(map[key]string)

	for _, day := range in.Plan.Days {
		for _, meal := range day.Meals {
			recipe, ok := byID[meal.RecipeID]
			if !ok {
				return nil, engine.Permanentf("plan references unknown recipe %q", meal.RecipeID)
			}
			servings := float64(meal.Servings)
			if servings <= 0 {
				servings = 1
			}
			for _, ing := range recipe.Ingredients {
				k := key{name: strings.ToLower(ing.Name), unit: ing.Unit}
				qty := ing.Quantity * servings
				quantities[k] += qty
				costs[k] += qty * ing.UnitPrice
				display[k] = ing.Name
			}
		}
	}

	keys := make([]key, 0, len(quantities))
	for k := range quantities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].unit < keys[j].unit
	})

	list := mealplan.GroceryList{Items: make([]mealplan.GroceryItem, 0, len(keys))}
	for _, k := range keys {
		cost := roundCents(costs[k])
		list.Items = append(list.Items, mealplan.GroceryItem{
			Name:          display[k],
			Quantity:      quantities[k],
			Unit:          k.unit,
			EstimatedCost: cost,
		})
		list.EstimatedCost = roundCents(list.EstimatedCost + cost)
	}

	logging.FromContext(ctx).Debug("grocery list computed",
		"items", len(list.Items), "estimated_cost", list.EstimatedCost)
	return json.Marshal(list)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
