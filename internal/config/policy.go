package config

// PolicyConfig holds tuning for the tool policy classifier.
type PolicyConfig struct {
	// StrengthThreshold gates relationship updates: setting strength below it
	// is treated as a narrative-impacting edit and requires approval.
	StrengthThreshold float64 `mapstructure:"strength_threshold"`
}

// DefaultPolicyConfig returns the default policy configuration.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		StrengthThreshold: 0.3,
	}
}

// LoadPolicyConfig loads policy configuration from Viper with defaults.
func LoadPolicyConfig() PolicyConfig {
	defaults := DefaultPolicyConfig()
	return PolicyConfig{
		StrengthThreshold: getFloat64WithDefault("policy.strength_threshold", defaults.StrengthThreshold),
	}
}
