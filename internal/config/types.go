package config

// Config is the client's main configuration carrier.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	API     APIConfig     `mapstructure:"api"`
	Agents  AgentsConfig  `mapstructure:"agents"`
	Storage StorageConfig `mapstructure:"storage"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// InactivityTimeoutSeconds aborts a read that goes silent; the
	// session treats the abort as a lost connection.
	InactivityTimeoutSeconds int `mapstructure:"inactivity_timeout_seconds"`
}

type AgentsConfig struct {
	// File points at the agent roster yaml; empty uses the built-in
	// roster.
	File string `mapstructure:"file"`
}

type StorageConfig struct {
	// AnalysisDB is the SQLite file for persisted verdicts; empty
	// disables persistence.
	AnalysisDB string `mapstructure:"analysis_db"`
	// JournalDB is the SQLite file for raw stream capture; empty
	// disables journaling.
	JournalDB string `mapstructure:"journal_db"`
}
