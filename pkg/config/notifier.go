package config

// NotifierConfig configures invite email delivery.
type NotifierConfig struct {
	Provider    string
	FromAddress string
	AWSRegion   string
}

func loadNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Provider:    getEnv("NOTIFIER_PROVIDER", "console"),
		FromAddress: getEnv("NOTIFIER_FROM_ADDRESS", "noreply@tillgate.io"),
		AWSRegion:   getEnv("NOTIFIER_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
	}
}
