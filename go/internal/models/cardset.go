package models

// CardSet is a named deck of vote values.
type CardSet struct {
	Name        string   `json:"name"`
	Cards       []string `json:"cards"`
	Description string   `json:"description"`
}

// Template is a story description scaffold.
type Template struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Icon     string `json:"icon,omitempty"`
}

// TeamDefaults are the per-team settings applied to newly created rooms.
type TeamDefaults struct {
	Name        string              `json:"name,omitempty"`
	CardSet     string              `json:"cardSet,omitempty"`
	CustomCards []string            `json:"customCards,omitempty"`
	CardHelp    map[string]string   `json:"cardHelp,omitempty"`
	Templates   map[string]Template `json:"templates,omitempty"`
}
