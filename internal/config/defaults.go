package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			PollTimeout: 5,
		},
		Inference: InferenceConfig{
			APIBase:            "https://api.groq.com/openai/v1",
			TranscriptionModel: "whisper-large-v3",
			Language:           "ru",
			ChatModel:          "llama-3.3-70b-versatile",
			Temperature:        0.3,
			MaxTokens:          2048,
			TimeoutSeconds:     120,
		},
		KeepAlive: KeepAliveConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
