package contracts

import "time"

// ChartResultTrace is one persisted computation, keyed by its input
// fingerprint and the versions that shaped it. Payload equality between
// traces is byte equality of ResultPayload.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ChartResultTrace struct {
	ChartID          string    `json:"chart_id"`
	UserID           string    `json:"user_id"`
	ReferenceVersion string    `json:"reference_version"`
	RulesetVersion   string    `json:"ruleset_version"`
	InputHash        string    `json:"input_hash"`
	ResultPayload    []byte    `json:"result_payload"`
	CreatedAt        time.Time `json:"created_at"`
}
