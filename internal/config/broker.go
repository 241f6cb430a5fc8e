package config

import "time"

// BrokerConfig describes the RabbitMQ connection used for notifications.
// An empty URL disables publishing; notifications are then only logged.
type BrokerConfig struct {
	URL          string
	Queue        string
	LogPath      string        // file the consumer appends delivered notifications to
	Consume      bool          // run the in-process consumer
	RetryBackoff time.Duration // first reconnect delay, doubled up to 30s
}

func LoadBrokerConfig() BrokerConfig {
	return BrokerConfig{
		URL:          envStr("RABBITMQ_URL", ""),
		Queue:        envStr("RABBITMQ_QUEUE", "kompen.notifications"),
		LogPath:      envStr("NOTIFICATION_LOG", "logs/notifications.log"),
		Consume:      envBool("NOTIFICATION_CONSUMER", true),
		RetryBackoff: envDur("RABBITMQ_RETRY_BACKOFF", 2*time.Second),
	}
}
