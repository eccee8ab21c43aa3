package models

type DecisionSource string

const (
	DecisionSourcePersonalized  DecisionSource = "PERSONALIZED"
	DecisionSourceDeterministic DecisionSource = "DETERMINISTIC"
	DecisionSourceNetwork       DecisionSource = "NETWORK"
	DecisionSourceNone          DecisionSource = "NONE"
)

// Decision is the outcome of one waterfall pass for one placement.
// Strict is true exactly when the decision carries a first-party ad.
type Decision struct {
	Placement      string         `json:"placement"`
	Source         DecisionSource `json:"source"`
	Strict         bool           `json:"strict"`
	Ad             *Ad            `json:"ad,omitempty"`
	NetworkContext map[string]any `json:"network_context,omitempty"`
}
