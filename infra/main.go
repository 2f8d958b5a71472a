package infra

import (
	"github.com/opencmp/cmp-orchestrator/config"
	"github.com/opencmp/cmp-orchestrator/infra/produce"
)

type Infra struct {
	Postgres  *PostgresClient
	Redis     *RedisClient
	RabbitMQ  *RabbitMQClient
	Logger    *LoggerClient
	Telemetry *TelemetryClient
	Produce   *produce.Produce
	Pulumi    *PulumiClient
	AWS       *AWSClient
	Azure     *AzureClient
}

var infraInstance *Infra

func InitInfra(cfg *config.Config) *Infra {
	if infraInstance != nil {
		return infraInstance
	}

	logger := InitLoggerClient(cfg.EnvConfig)
	if logger == nil {
		panic("Failed to initialize Logger service")
	}

	telemetry := InitTelemetryClient(cfg.EnvConfig)

	postgres := InitPostgresClient(cfg.EnvConfig)
	if postgres == nil {
		panic("Failed to initialize Postgres service")
	}

	redis := InitRedisClient(cfg.EnvConfig)
	if redis == nil {
		panic("Failed to initialize Redis service")
	}

	rabbitMQ := InitRabbitMQClient(cfg.EnvConfig)
	if rabbitMQ == nil {
		panic("Failed to initialize RabbitMQ service")
	}

	produceService := produce.InitProduce(rabbitMQ.Channel)
	if produceService == nil {
		panic("Failed to initialize Produce service")
	}

	pulumiClient := InitPulumiClient(cfg.EnvConfig)
	if pulumiClient == nil {
		panic("Failed to initialize Pulumi service")
	}

	awsClient := InitAWSClient(cfg.EnvConfig)
	if awsClient == nil {
		panic("Failed to initialize AWS service")
	}

	azureClient := InitAzureClient(cfg.EnvConfig)
	if azureClient == nil {
		panic("Failed to initialize Azure service")
	}

	infraInstance = &Infra{
		Postgres:  postgres,
		Redis:     redis,
		RabbitMQ:  rabbitMQ,
		Logger:    logger,
		Telemetry: telemetry,
		Produce:   produceService,
		Pulumi:    pulumiClient,
		AWS:       awsClient,
		Azure:     azureClient,
	}

	return infraInstance
}

func GetClient() *Infra {
	if infraInstance == nil {
		panic("Infra not initialized. Call InitInfra() first.")
	}
	return infraInstance
}
