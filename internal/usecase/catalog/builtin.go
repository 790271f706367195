// Package catalog holds the agent definitions and collections shipped with
// weatherdine and turns them into runnable agents.
package catalog

import "weatherdine/internal/domain"

// Built-in agent IDs.
const (
	WeatherAgentID    = "weather"
	RestaurantAgentID = "restaurant"
	TravelAgentID     = "travel"
	ShoppingAgentID   = "shopping"
)

// Workflow IDs referenced by the built-in collections.
const (
	weatherWorkflow    = "weather-workflow"
	restaurantWorkflow = "restaurant-workflow"
)

const (
	sharedMemoryDB   = "weatherdine.db"
	shoppingMemoryDB = "shopping-agent.db"
)

// Builtins returns the default agent definitions in display order.
func Builtins() []domain.AgentDefinition {
	return []domain.AgentDefinition{
		{
			ID:           WeatherAgentID,
			Name:         "Weather Agent",
			Description:  "Provides weather information and activity suggestions",
			Instructions: weatherInstructions,
			Tools:        []string{domain.ToolGetWeather},
			Memory:       domain.MemorySpec{Enabled: true, Path: sharedMemoryDB},
			UseCases:     []string{"Weather queries", "Activity planning", "Location-based recommendations"},
		},
		{
			ID:           RestaurantAgentID,
			Name:         "Restaurant Expert",
			Description:  "Finds restaurants with weather-aware recommendations",
			Instructions: restaurantInstructions,
			Tools:        []string{domain.ToolFindRestaurants},
			Memory:       domain.MemorySpec{Enabled: true, Path: sharedMemoryDB},
			UseCases:     []string{"Restaurant discovery", "Dining recommendations", "Weather-appropriate dining"},
		},
		{
			ID:           TravelAgentID,
			Name:         "Travel Expert",
			Description:  "Comprehensive travel planning with weather and dining integration",
			Instructions: travelInstructions,
			Tools:        []string{domain.ToolGetWeather, domain.ToolFindRestaurants},
			Memory:       domain.MemorySpec{Enabled: true, Path: sharedMemoryDB},
			UseCases:     []string{"Trip planning", "Destination research", "Weather-aware travel", "Local dining discovery"},
		},
		{
			ID:           ShoppingAgentID,
			Name:         "Shopping Assistant",
			Description:  "Personalized shopping recommendations with memory capabilities",
			Instructions: shoppingInstructions,
			Memory:       domain.MemorySpec{Enabled: true, Path: shoppingMemoryDB},
			UseCases:     []string{"Product recommendations", "Shopping assistance", "Preference learning", "Budget tracking"},
		},
	}
}

// BuiltinCollections returns the default agent collections.
func BuiltinCollections() []domain.AgentCollection {
	return []domain.AgentCollection{
		{
			ID:          "weatherAndDining",
			Name:        "Weather & Dining Collection",
			Description: "Agents for weather and restaurant recommendations",
			Agents:      []string{WeatherAgentID, RestaurantAgentID},
			Workflows:   []string{weatherWorkflow, restaurantWorkflow},
		},
		{
			ID:          "travelPlanning",
			Name:        "Travel Planning Collection",
			Description: "Complete travel planning solution",
			Agents:      []string{TravelAgentID},
			Workflows:   []string{restaurantWorkflow},
		},
		{
			ID:          "completeSuite",
			Name:        "Complete Agent Suite",
			Description: "All agents and workflows for comprehensive assistance",
			Agents:      []string{WeatherAgentID, RestaurantAgentID, TravelAgentID, ShoppingAgentID},
			Workflows:   []string{weatherWorkflow, restaurantWorkflow},
		},
	}
}
