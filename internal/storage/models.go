package storage

import "time"

// SettingsRow is the single persisted provider configuration. The API key is
// stored as a crypto envelope, never in the clear.
type SettingsRow struct {
	Provider    string
	EncAPIKey   string
	BaseURL     string
	Model       string
	Temperature *float64
	UpdatedAt   time.Time
}

type AuditEntry struct {
	ContainerID string
	Action      string
	MetaJSON    string
	CreatedAt   time.Time
}
