package config

import (
	"fmt"
	"os"
	"time"
)

// Config configuración principal de la aplicación
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mongo    MongoConfig
	Auth     AuthConfig
	Channel  ChannelConfig
	Runtime  RuntimeConfig
}

// ServerConfig configuración del servidor HTTP
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configuración de PostgreSQL
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MongoConfig configuración del cliente Mongo usado por los nodos de base
// de datos documental
type MongoConfig struct {
	URI            string
	ConnectTimeout time.Duration
}

// AuthConfig configuración de tokens de tenant
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// ChannelConfig conexión con la pasarela de mensajería
type ChannelConfig struct {
	GatewayURL   string
	GatewayToken string
	SendTimeout  time.Duration
}

// RuntimeConfig parámetros del runtime de ejecución de flujos
type RuntimeConfig struct {
	AdapterTimeout      time.Duration // timeout por invocación de adaptador externo
	MaxResponseBytes    int64         // tope del cuerpo de respuesta HTTP almacenado
	MaxValidationTries  int           // intentos de validación antes de force-advance
	SweepSchedule       string        // expresión cron del barrido de inactividad
	GeneralIdleTimeout  time.Duration
	MenuIdleTimeout     time.Duration
	TextIdleTimeout     time.Duration
	WarningInterval     time.Duration
	MaxWarnings         int
	ReengageGrace       time.Duration
	InactiveAfter       time.Duration
	MaxFlowSwitches     int // cambios de flujo encadenados por turno
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", getEnv("POSTGRES_HOST", "localhost")),
			Port:            getEnv("DB_PORT", getEnv("POSTGRES_PORT", "5432")),
			User:            getEnv("DB_USER", getEnv("POSTGRES_USER", "postgres")),
			Password:        getEnv("DB_PASSWORD", getEnv("POSTGRES_PASSWORD", "postgres")),
			DBName:          getEnv("DB_NAME", getEnv("POSTGRES_DB", "conversa")),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", ""),
			ConnectTimeout: getDurationEnv("MONGO_CONNECT_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "default-secret-change-in-production"),
			Issuer:    getEnv("JWT_ISSUER", "conversa"),
			TokenTTL:  getDurationEnv("TOKEN_TTL", 24*time.Hour),
		},
		Channel: ChannelConfig{
			GatewayURL:   getEnv("CHANNEL_GATEWAY_URL", ""),
			GatewayToken: getEnv("CHANNEL_GATEWAY_TOKEN", ""),
			SendTimeout:  getDurationEnv("CHANNEL_SEND_TIMEOUT", 10*time.Second),
		},
		Runtime: RuntimeConfig{
			AdapterTimeout:     getDurationEnv("ADAPTER_TIMEOUT", 10*time.Second),
			MaxResponseBytes:   int64(getIntEnv("MAX_RESPONSE_BYTES", 100*1024)),
			MaxValidationTries: getIntEnv("MAX_VALIDATION_TRIES", 3),
			SweepSchedule:      getEnv("SWEEP_SCHEDULE", "*/1 * * * *"),
			GeneralIdleTimeout: getDurationEnv("GENERAL_IDLE_TIMEOUT", 30*time.Minute),
			MenuIdleTimeout:    getDurationEnv("MENU_IDLE_TIMEOUT", 10*time.Minute),
			TextIdleTimeout:    getDurationEnv("TEXT_IDLE_TIMEOUT", 15*time.Minute),
			WarningInterval:    getDurationEnv("WARNING_INTERVAL", 5*time.Minute),
			MaxWarnings:        getIntEnv("MAX_WARNINGS", 2),
			ReengageGrace:      getDurationEnv("REENGAGE_GRACE", 30*time.Minute),
			InactiveAfter:      getDurationEnv("INACTIVE_AFTER", 1*time.Hour),
			MaxFlowSwitches:    getIntEnv("MAX_FLOW_SWITCHES", 5),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate valida la configuración
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Runtime.MaxValidationTries <= 0 {
		return fmt.Errorf("MAX_VALIDATION_TRIES must be positive")
	}
	return nil
}

// GetDSN retorna el DSN de PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr retorna la dirección de Redis
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
