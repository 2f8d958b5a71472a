package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	Postgres struct {
		Host     string
		Database string
		Username string
		Password string
		Port     string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		Database int
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	JWT struct {
		SecretKey string
		Algorithm string
		Expire    int
	}
	CORS struct {
		AllowDomains string
	}
	AWS struct {
		AccessKeyID     string
		SecretAccessKey string
		DefaultRegion   string
	}
	Azure struct {
		ClientID       string
		ClientSecret   string
		TenantID       string
		SubscriptionID string
	}
	Reconcile struct {
		Interval        time.Duration // periodic all-projects tick
		Workers         int           // per-run fan-out bound
		ProviderTimeout time.Duration // bound on each cloud provider call
		LeaseTTL        time.Duration // per-project lease expiry
	}
	Pulumi struct {
		ProjectName string
		WorkDir     string
	}
	Telemetry struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode string
	}
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.Host = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// Redis
	config.Redis.Host = os.Getenv("REDIS_HOST")
	config.Redis.Port = os.Getenv("REDIS_PORT")
	if config.Redis.Port == "" {
		config.Redis.Port = "6379"
	}
	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")
	config.JWT.Algorithm = os.Getenv("JWT_ALGORITHM")
	if config.JWT.Algorithm == "" {
		config.JWT.Algorithm = "HS256"
	}
	if val := os.Getenv("JWT_EXPIRE"); val != "" {
		config.JWT.Expire, _ = strconv.Atoi(val)
	} else {
		config.JWT.Expire = 3600 * 24 * 7
	}

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")

	// Cloud credentials. The AWS pair is also picked up by the SDK's default
	// chain; kept here so the provisioning adapter can pass them through.
	config.AWS.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.AWS.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.AWS.DefaultRegion = os.Getenv("AWS_DEFAULT_REGION")
	if config.AWS.DefaultRegion == "" {
		config.AWS.DefaultRegion = "us-east-1"
	}

	config.Azure.ClientID = os.Getenv("ARM_CLIENT_ID")
	config.Azure.ClientSecret = os.Getenv("ARM_CLIENT_SECRET")
	config.Azure.TenantID = os.Getenv("ARM_TENANT_ID")
	config.Azure.SubscriptionID = os.Getenv("ARM_SUBSCRIPTION_ID")

	// Reconcile loop
	config.Reconcile.Interval = durationEnv("RECONCILE_INTERVAL", 5*time.Minute)
	config.Reconcile.Workers = intEnv("RECONCILE_WORKERS", 4)
	config.Reconcile.ProviderTimeout = durationEnv("PROVIDER_CALL_TIMEOUT", 3*time.Minute)
	config.Reconcile.LeaseTTL = durationEnv("RECONCILE_LEASE_TTL", 10*time.Minute)

	// Pulumi
	config.Pulumi.ProjectName = os.Getenv("PULUMI_PROJECT_NAME")
	if config.Pulumi.ProjectName == "" {
		config.Pulumi.ProjectName = "cmp-cloud-project"
	}
	config.Pulumi.WorkDir = os.Getenv("PULUMI_WORK_DIR")

	// Telemetry
	endpoint := os.Getenv("OTLP_ENDPOINT")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	config.Telemetry.OTLPEndpoint = endpoint
	config.Telemetry.ServiceName = os.Getenv("SERVICE_NAME")
	if config.Telemetry.ServiceName == "" {
		config.Telemetry.ServiceName = "cmp-orchestrator"
	}

	config.Environment.Mode = os.Getenv("DEPLOY_ENV")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}

	return &config
}

func durationEnv(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return def
}
