package model

import "time"

// HistoryExport is the top-level JSON structure for generation history export.
type HistoryExport struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Engine      string             `json:"engine"`
	Model       string             `json:"model"`
	Count       int                `json:"count"`
	Generations []GenerationRecord `json:"generations"`
}

// EngineInfo identifies the generation backend a deployment runs against.
// Stored as metadata so exports carry it even when taken offline.
type EngineInfo struct {
	Engine string `json:"engine"`
	Model  string `json:"model"`
}
