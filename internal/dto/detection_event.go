package dto

import "time"

// SymbolView is one symbol drawn on a frame, with its box in original frame coordinates.
type SymbolView struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Recorded bool   `json:"recorded"`
	Valid    *bool  `json:"valid,omitempty"`
}

// DetectionEvent is the message broadcast to live viewers for a frame that contained symbols.
type DetectionEvent struct {
	Type      string       `json:"type"`
	Frame     uint64       `json:"frame"`
	Timestamp time.Time    `json:"timestamp"`
	Technique string       `json:"technique"`
	Scale     float64      `json:"scale"`
	Symbols   []SymbolView `json:"symbols"`
}
