// Package accounts manages named credential profiles for the executor,
// including atomic activation of exactly one profile at a time.
// Grounded on original_source/src/cuti/services/claude_account_manager.py,
// the authoritative behavior per spec §4.5's Open Question resolution.
package accounts

import "time"

// BackupPrefix marks a profile as an automatic backup created by New.
// Profiles with this prefix are hidden from List unless requested.
const BackupPrefix = "backup_"

// Provider identifies an API-key upstream.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic_api"
	ProviderBedrock   Provider = "bedrock_api"
)

// APIKey is a static credential blob for one provider, stored in a
// profile's .api_keys.json at 0600.
type APIKey struct {
	Provider Provider `json:"provider"`

	// Anthropic
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`

	// Bedrock: either BearerToken, or AccessKeyID+SecretAccessKey.
	BearerToken     string `json:"bearer_token,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty"`
	Region          string `json:"region,omitempty"`
	SmallFastRegion string `json:"small_fast_region,omitempty"`
}

// Meta is per-profile metadata stored in the index.
type Meta struct {
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`

	// SubscriptionType and Email are opaque, carried verbatim from the
	// executor's own account info if present.
	SubscriptionType string `json:"subscription_type,omitempty"`
	Email            string `json:"email,omitempty"`
}

// Index is the on-disk accounts index (accounts/accounts.json).
type Index struct {
	Accounts    map[string]Meta `json:"accounts"`
	Active      *string         `json:"active"`
	LastUpdated time.Time       `json:"last_updated"`
}

// NewIndex returns an empty accounts index.
func NewIndex() *Index {
	return &Index{Accounts: make(map[string]Meta)}
}

// EnvUnsetList is the full set of environment variables this system is
// known to set across any profile, per spec §6 — emitted on every switch
// before the new set list so the environment is never partially updated.
var EnvUnsetList = []string{
	"ANTHROPIC_API_KEY",
	"AWS_BEARER_TOKEN_BEDROCK",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AWS_REGION",
	"CLAUDE_CODE_USE_BEDROCK",
	"ANTHROPIC_SMALL_FAST_MODEL_AWS_REGION",
}

// EnvVars returns the set-list of environment variable bindings for this
// API key, per claude_account_manager.py's get_env_vars.
func (k APIKey) EnvVars() map[string]string {
	env := make(map[string]string)
	switch k.Provider {
	case ProviderAnthropic:
		if k.AnthropicAPIKey != "" {
			env["ANTHROPIC_API_KEY"] = k.AnthropicAPIKey
		}
	case ProviderBedrock:
		env["CLAUDE_CODE_USE_BEDROCK"] = "1"
		if k.BearerToken != "" {
			env["AWS_BEARER_TOKEN_BEDROCK"] = k.BearerToken
		} else {
			env["AWS_ACCESS_KEY_ID"] = k.AccessKeyID
			env["AWS_SECRET_ACCESS_KEY"] = k.SecretAccessKey
			if k.SessionToken != "" {
				env["AWS_SESSION_TOKEN"] = k.SessionToken
			}
		}
		if k.Region != "" {
			env["AWS_REGION"] = k.Region
		}
		if k.SmallFastRegion != "" {
			env["ANTHROPIC_SMALL_FAST_MODEL_AWS_REGION"] = k.SmallFastRegion
		}
	}
	return env
}
