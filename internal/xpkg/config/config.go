package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DB       *Postgres `yaml:"database"`
	RMQ      *RabbitMQ `yaml:"rabbitmq"`
	Store    *Store    `yaml:"store"`
	Business *Business `yaml:"business"`
	Delivery *Delivery `yaml:"delivery"`
	WhatsApp *WhatsApp `yaml:"whatsapp"`
	SMS      *SMS      `yaml:"sms"`
	CORS     *CORS     `yaml:"cors"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQ struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	VHost    string `yaml:"vhost"`
}

// Store selects the document store backend and its transaction retry budget.
type Store struct {
	Driver       string `yaml:"driver"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryBackoff int    `yaml:"retry_backoff_ms"`
}

// Business holds the values the server never takes from a request.
type Business struct {
	Timezone string  `yaml:"timezone"`
	TaxRate  float64 `yaml:"tax_rate"`
}

// Delivery is the initial delivery region, written to the store only when no
// region record exists yet.
type Delivery struct {
	CenterLat float64 `yaml:"center_lat"`
	CenterLng float64 `yaml:"center_lng"`
	RadiusKm  float64 `yaml:"radius_km"`
}

type WhatsApp struct {
	BaseURL          string `yaml:"base_url"`
	PhoneNumberID    string `yaml:"phone_number_id"`
	Token            string `yaml:"token"`
	TemplateName     string `yaml:"template_name"`
	TemplateLanguage string `yaml:"template_language"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

type SMS struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.DB == nil {
		c.DB = &Postgres{}
	}
	if c.RMQ == nil {
		c.RMQ = &RabbitMQ{}
	}
	c.DB.Host = getEnv("POSTGRES_HOST", c.DB.Host)
	c.DB.Port = getEnv("POSTGRES_PORT", c.DB.Port)
	c.DB.User = getEnv("POSTGRES_USER", c.DB.User)
	c.DB.Password = getEnv("POSTGRES_PASSWORD", c.DB.Password)
	c.DB.Database = getEnv("POSTGRES_DBNAME", c.DB.Database)

	c.RMQ.Host = getEnv("RABBITMQ_HOST", c.RMQ.Host)
	c.RMQ.Port = getEnv("RABBITMQ_PORT", c.RMQ.Port)
	c.RMQ.User = getEnv("RABBITMQ_USER", c.RMQ.User)
	c.RMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RMQ.Password)
	c.RMQ.VHost = getEnv("RABBITMQ_VHOST", c.RMQ.VHost)

	if c.WhatsApp != nil {
		c.WhatsApp.Token = getEnv("WHATSAPP_TOKEN", c.WhatsApp.Token)
	}
	if c.SMS != nil {
		c.SMS.APIKey = getEnv("SMS_API_KEY", c.SMS.APIKey)
	}
	if v := os.Getenv("BUSINESS_TAX_RATE"); v != "" && c.Business != nil {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Business.TaxRate = rate
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Store.MaxAttempts == 0 {
		c.Store.MaxAttempts = 5
	}
	if c.Store.RetryBackoff == 0 {
		c.Store.RetryBackoff = 20
	}
	if c.DB.Port == "" {
		c.DB.Port = "5432"
	}
	if c.RMQ.Port == "" {
		c.RMQ.Port = "5672"
	}
	if c.WhatsApp == nil {
		c.WhatsApp = &WhatsApp{}
	}
	if c.WhatsApp.TimeoutSeconds == 0 {
		c.WhatsApp.TimeoutSeconds = 10
	}
	if c.WhatsApp.TemplateLanguage == "" {
		c.WhatsApp.TemplateLanguage = "en_US"
	}
	if c.SMS == nil {
		c.SMS = &SMS{}
	}
	if c.SMS.TimeoutSeconds == 0 {
		c.SMS.TimeoutSeconds = 5
	}
	if c.CORS == nil {
		c.CORS = &CORS{}
	}
}

// Validate rejects configurations the services cannot run with. The business
// timezone has no implicit default.
func (c *Config) Validate() error {
	if c.Business == nil || c.Business.Timezone == "" {
		return fmt.Errorf("business.timezone is required")
	}
	if _, err := time.LoadLocation(c.Business.Timezone); err != nil {
		return fmt.Errorf("business.timezone: %w", err)
	}
	if c.Business.TaxRate < 0 || c.Business.TaxRate >= 1 {
		return fmt.Errorf("business.tax_rate must be in [0, 1): %v", c.Business.TaxRate)
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q: %q", DriverPostgres, DriverMemory, c.Store.Driver)
	}
	if c.Store.MaxAttempts < 1 {
		return fmt.Errorf("store.max_attempts must be positive: %d", c.Store.MaxAttempts)
	}
	if c.Delivery != nil && c.Delivery.RadiusKm < 0 {
		return fmt.Errorf("delivery.radius_km cannot be negative: %v", c.Delivery.RadiusKm)
	}
	return nil
}

// Location returns the business timezone. Validate guarantees it loads.
func (b *Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
	)
}

func (r *RabbitMQ) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		r.User,
		r.Password,
		r.Host,
		r.Port,
		r.VHost,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
