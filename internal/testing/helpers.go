package testing

import (
	"time"

	"pkdindustries/ircd/internal/config"
)

// DefaultTestConfig returns a minimal configuration for testing. No files
// are configured, so MOTD replies with ERR_NOMOTD and nothing is persisted.
func DefaultTestConfig() *config.Configuration {
	return &config.Configuration{
		Server: &config.ServerConfig{
			Name:   "irc.test.local",
			Listen: "127.0.0.1",
			Port:   0,
			Info:   "test server",
		},
		Limits: &config.LimitsConfig{
			MaxChannels:     10,
			MaxChannelUsers: 0,
			NickLength:      30,
			TopicLength:     300,
			FloodRate:       1000,
			FloodBurst:      1000,
		},
		Timers: &config.TimersConfig{
			PingInterval:    time.Minute,
			PingTimeout:     time.Minute,
			WriteTimeout:    time.Second * 5,
			ShutdownTimeout: time.Second * 2,
		},
		Files:   &config.FilesConfig{},
		Metrics: &config.MetricsConfig{},
		Log:     &config.LogConfig{},
	}
}
