package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type ScoreRequest struct {
	ModelID   string `json:"model_id" validate:"required"`
	Pair      string `json:"pair" validate:"required"`
	Timeframe string `json:"timeframe" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d 1w"`
	Direction string `json:"direction" default:"bullish" validate:"oneof=bullish bearish"`
}

type StructureRequest struct {
	Pair      string `query:"pair" json:"pair" validate:"required"`
	Timeframe string `query:"tf" json:"tf" default:"1h" validate:"oneof=1m 5m 15m 1h 4h 1d 1w"`
	N         int    `query:"n" json:"n" default:"300" validate:"gte=10,lte=5000"`
}

type PhasesRequest struct {
	ModelID string `query:"model_id" json:"model_id"`
	Pair    string `query:"pair" json:"pair"`
}
