package room

import "github.com/JacquesBronk/FreeScrumPoker/go/internal/models"

const DefaultCardSet = "fibonacci"

// CardSets returns the built-in card sets keyed by id.
func CardSets() map[string]models.CardSet {
	return map[string]models.CardSet{
		"fibonacci": {
			Name:        "Fibonacci",
			Cards:       []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?"},
			Description: "Standard Fibonacci sequence for story points",
		},
		"tshirt": {
			Name:        "T-Shirt Sizes",
			Cards:       []string{"XS", "S", "M", "L", "XL", "XXL", "?"},
			Description: "T-shirt sizing for relative estimation",
		},
		"powers": {
			Name:        "Powers of 2",
			Cards:       []string{"1", "2", "4", "8", "16", "32", "64", "?"},
			Description: "Powers of 2 for technical complexity",
		},
		"linear": {
			Name:        "Linear",
			Cards:       []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "?"},
			Description: "Linear scale for simple estimation",
		},
	}
}

// Templates returns the built-in story templates keyed by id.
func Templates() map[string]models.Template {
	return map[string]models.Template{
		"user-story": {
			Name:     "User Story",
			Template: "As a [user] I want [goal] so that [benefit]",
			Icon:     "👤",
		},
		"bug": {
			Name:     "Bug Report",
			Template: "When [action] then [unexpected] but should [expected]",
			Icon:     "🐛",
		},
		"tech-debt": {
			Name:     "Technical Task",
			Template: "Current: [problem]\nProposed: [solution]\nBenefit: [benefit]",
			Icon:     "⚙️",
		},
		"spike": {
			Name:     "Research Spike",
			Template: "Investigation needed: [question]\nSuccess criteria: [criteria]",
			Icon:     "🔍",
		},
	}
}
