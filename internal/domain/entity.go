package domain

import "fmt"

// EntityType names a kind of versioned domain object.
type EntityType string

const (
	EntityProject          EntityType = "project"
	EntityWBE              EntityType = "wbe"
	EntityCostElement      EntityType = "cost_element"
	EntityBudget           EntityType = "budget"
	EntityForecast         EntityType = "forecast"
	EntityCostRegistration EntityType = "cost_registration"
	EntityBaseline         EntityType = "baseline"
)

var entityTypes = map[EntityType]bool{
	EntityProject:          false,
	EntityWBE:              true,
	EntityCostElement:      true,
	EntityBudget:           false,
	EntityForecast:         false,
	EntityCostRegistration: false,
	EntityBaseline:         false,
}

// ParseEntityType validates an entity type name.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if _, ok := entityTypes[t]; !ok {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, s)
	}
	return t, nil
}

// BranchCapable reports whether versions of this type carry a branch.
func (t EntityType) BranchCapable() bool {
	return entityTypes[t]
}

// EntityTypes returns every known entity type.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityProject, EntityWBE, EntityCostElement, EntityBudget,
		EntityForecast, EntityCostRegistration, EntityBaseline,
	}
}
