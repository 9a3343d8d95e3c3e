package models

// UserSettingsID is the fixed key of the settings singleton.
const UserSettingsID = "user_settings"

// DefaultWeeklyBudgetCents is used when settings are created lazily.
const DefaultWeeklyBudgetCents = 100_00

// UserSettings is a singleton keyed by UserSettingsID.
type UserSettings struct {
	ID                string       `json:"id"`
	WeeklyBudgetCents int64        `json:"weeklyBudgetCents"`
	Sync              SyncMetadata `json:"sync"`
}

// DefaultSettings returns the lazily-created default settings row.
func DefaultSettings() *UserSettings {
	return &UserSettings{
		ID:                UserSettingsID,
		WeeklyBudgetCents: DefaultWeeklyBudgetCents,
		Sync:              NewSyncMetadata(),
	}
}

// Remote maps the settings to their wire representation.
func (s *UserSettings) Remote() RemoteSettings {
	return RemoteSettings{
		ID:                s.Sync.CloudIDString(),
		WeeklyBudgetCents: s.WeeklyBudgetCents,
	}
}

// SettingsUpdate is a partial update of UserSettings; nil fields are left
// unchanged.
type SettingsUpdate struct {
	WeeklyBudgetCents *int64 `json:"weeklyBudgetCents,omitempty"`
}

// Apply merges the update into s.
func (u SettingsUpdate) Apply(s *UserSettings) {
	if u.WeeklyBudgetCents != nil {
		s.WeeklyBudgetCents = *u.WeeklyBudgetCents
	}
}
