package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port           string        `mapstructure:"port"`
	GRPCPort       string        `mapstructure:"grpc_port"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
	MemberCacheTTL time.Duration `mapstructure:"member_cache_ttl"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Realtime   RealtimeConfig `mapstructure:"realtime"`
	Upload     UploadConfig   `mapstructure:"upload"`
}

// RealtimeConfig definition websocket setting
type RealtimeConfig struct {
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	TypingTTL         time.Duration `mapstructure:"typing_ttl"`
	EventsPerSecond   float64       `mapstructure:"events_per_second"`
	EventBurst        int           `mapstructure:"event_burst"`
	WriteWaitDuration time.Duration `mapstructure:"write_wait"`
}

// UploadConfig definition chat attachment limit
type UploadConfig struct {
	MaxBytes     int64    `mapstructure:"max_bytes"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	BucketName    string `mapstructure:"bucket_name"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicURL     string `mapstructure:"public_url"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// KafkaConfig definition kafka setting, empty brokers disable the activity sink
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryInterval int      `mapstructure:"retry_interval"`
	RetryCount    int      `mapstructure:"retry_count"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// ApplyDefaults fill zero value with service default
func (c *Chat) ApplyDefaults() {
	if c.Port == "" {
		c.Port = "8082"
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	if c.MemberCacheTTL <= 0 {
		c.MemberCacheTTL = 10 * time.Minute
	}
	if c.Realtime.PingInterval <= 0 {
		c.Realtime.PingInterval = 30 * time.Second
	}
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Realtime.TypingTTL <= 0 {
		c.Realtime.TypingTTL = time.Second
	}
	if c.Realtime.EventsPerSecond <= 0 {
		c.Realtime.EventsPerSecond = 20
	}
	if c.Realtime.EventBurst <= 0 {
		c.Realtime.EventBurst = 40
	}
	if c.Realtime.WriteWaitDuration <= 0 {
		c.Realtime.WriteWaitDuration = 10 * time.Second
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 10 * 1024 * 1024
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = []string{"jpeg", "jpg", "png", "gif", "pdf", "doc", "docx", "txt"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "team-chat-activity"
	}
}
