package config

// Config represents the full myday configuration
type Config struct {
	// Directory for the mirror file, the local database and logs
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// Hosted backend project
	Supabase SupabaseConfig `yaml:"supabase" mapstructure:"supabase"`

	// LLM provider for insights
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`

	// Local widget snapshot feed (myday watch)
	Widget ListenConfig `yaml:"widget" mapstructure:"widget"`

	// Insights HTTP server (myday serve)
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Log file rotation for long-running commands
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

// SupabaseConfig identifies the backend project and its keys
type SupabaseConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	AnonKey        string `yaml:"anon_key" mapstructure:"anon_key"`
	ServiceRoleKey string `yaml:"service_role_key,omitempty" mapstructure:"service_role_key"`
	JWTSecret      string `yaml:"jwt_secret,omitempty" mapstructure:"jwt_secret"`
}

// AnthropicConfig configures the insights model
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// ListenConfig is a bind address
type ListenConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// ServerConfig configures the insights server
// and the public URL the CLI calls for `myday insights`
type ServerConfig struct {
	Host         string   `yaml:"host" mapstructure:"host"`
	Port         int      `yaml:"port" mapstructure:"port"`
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins"`
	URL          string   `yaml:"url" mapstructure:"url"`
}

// LogConfig configures rotating log files. An empty File disables them.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}
