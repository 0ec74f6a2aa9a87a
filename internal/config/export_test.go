package config

// DetectFormat exports detectFormat for testing.
var DetectFormat = detectFormat

// MakeTestConfig returns a minimal valid Config.
func MakeTestConfig() *Config {
	return &Config{
		Accounts: []AccountConfig{
			{Name: "main", AppID: "123", Username: "user@example.com", Password: "secret"},
		},
	}
}
