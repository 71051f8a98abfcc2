package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// App holds everything read from the environment. Secrets for JWT signing stay
// in os.Getenv because the iris jwt verifiers read them directly at route setup.
type App struct {
	Port        string `envconfig:"PORT" default:"4000"`
	DatabaseDSN string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" default:"localhost:6379"`

	// RabbitMQ notification bus. Empty URL disables fan-out (rows are still written).
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"rentall.events"`

	// Omise card processor
	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`
	Currency       string `envconfig:"CURRENCY" default:"cad"`

	// Deposit workflow windows
	DisputeWindow  time.Duration `envconfig:"DEPOSIT_DISPUTE_WINDOW" default:"48h"`
	ResponseWindow time.Duration `envconfig:"DEPOSIT_RESPONSE_WINDOW" default:"24h"`

	// Shared secret the external cron scheduler presents to the robot endpoints.
	RobotToken string `envconfig:"ROBOT_TOKEN"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
