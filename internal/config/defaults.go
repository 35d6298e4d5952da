package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeoutSeconds: 30,
			MaxBodyBytes:       1 << 20,
		},
		Meta: MetaConfig{
			APIVersion:   "v18.0",
			GraphBaseURL: "https://graph.facebook.com",
		},
		Discord: DiscordConfig{
			MessagesPerSecond: 5,
			MessagesPerMinute: 120,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds:      30,
			MediaTimeoutSeconds: 60,
			MaxRetries:          3,
		},
		Store: StoreConfig{
			DBPath: "~/.botgateway/gateway.db",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
