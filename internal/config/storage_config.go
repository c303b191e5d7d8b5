package config

type StoreType string

const (
	StoreFile   StoreType = "file"
	StoreRedis  StoreType = "redis"
	StoreMemory StoreType = "memory"
)

type StorageConfig interface {
	GetStoreType() StoreType
	GetStoreFile() string
	GetStoreKey() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type Storage struct {
	Type        StoreType `env:"STORE" envDefault:"file"`
	File        string    `env:"STORE_FILE" envDefault:"./data/session.json"`
	Key         string    `env:"STORE_KEY"`
	RedisAddr   string    `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string    `env:"REDIS_PREFIX" envDefault:"dortmed:"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreType() StoreType {
	return s.Type
}

func (s Storage) GetStoreFile() string {
	return s.File
}

// GetStoreKey returns the hex encoded secretbox key for the session file, if any.
func (s Storage) GetStoreKey() string {
	return s.Key
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Storage) GetRedisPrefix() string {
	return s.RedisPrefix
}
