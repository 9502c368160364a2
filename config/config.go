package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv" // 引入這個庫來讀取 .env 檔案
	"github.com/spf13/viper"

	"batchchat/logger"
)

const (
	StoreDriverMongo  = "mongo"
	StoreDriverBadger = "badger"
)

// Config 結構體用於儲存應用程式的配置
type Config struct {
	Port string

	MongoDBURI  string
	DBName      string
	StoreDriver string // "mongo" 或 "badger"
	BadgerPath  string

	RedisAddress       string // 空字串代表不啟用歷史訊息快取
	RedisPassword      string
	RedisDB            int
	HistoryCacheTTL    time.Duration
	HistoryCachePrefix string

	JWTSecret      string // 空字串代表不綁定連線身分
	AllowedOrigins []string

	PersistTimeout       time.Duration
	BatchMembershipCheck bool

	WebSocket WebSocketConfig
	Log       logger.Config
}

// WebSocketConfig 連線層參數
type WebSocketConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// LoadConfig 載入配置，優先從環境變數讀取，其次從 .env 檔案讀取
func LoadConfig() *Config {
	// 嘗試載入 .env 檔案，如果不存在也不會報錯
	if err := godotenv.Load(); err != nil {
		l := logger.L()
		l.Debug().Msg("No .env file found, relying on environment variables.")
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("DB_NAME", "batch_chat_db")
	v.SetDefault("STORE_DRIVER", StoreDriverMongo)
	v.SetDefault("BADGER_PATH", "./data/badger")
	v.SetDefault("REDIS_ADDRESS", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("HISTORY_CACHE_TTL", "30s")
	v.SetDefault("HISTORY_CACHE_PREFIX", "batchchat:history")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("PERSIST_TIMEOUT", "5s")
	v.SetDefault("BATCH_MEMBERSHIP_CHECK", false)
	v.SetDefault("WS_PING_INTERVAL", "54s")
	v.SetDefault("WS_PONG_WAIT", "60s")
	v.SetDefault("WS_WRITE_WAIT", "10s")
	v.SetDefault("WS_MAX_MESSAGE_SIZE", 4096)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	return v
}

func fromViper(v *viper.Viper) *Config {
	driver := strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))
	if driver != StoreDriverBadger {
		driver = StoreDriverMongo
	}

	return &Config{
		Port:                 v.GetString("PORT"),
		MongoDBURI:           v.GetString("MONGODB_URI"),
		DBName:               v.GetString("DB_NAME"),
		StoreDriver:          driver,
		BadgerPath:           v.GetString("BADGER_PATH"),
		RedisAddress:         v.GetString("REDIS_ADDRESS"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
		HistoryCacheTTL:      parseDuration(v, "HISTORY_CACHE_TTL", 30*time.Second),
		HistoryCachePrefix:   v.GetString("HISTORY_CACHE_PREFIX"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		AllowedOrigins:       splitList(v.GetString("ALLOWED_ORIGINS")),
		PersistTimeout:       parseDuration(v, "PERSIST_TIMEOUT", 5*time.Second),
		BatchMembershipCheck: v.GetBool("BATCH_MEMBERSHIP_CHECK"),
		WebSocket: WebSocketConfig{
			PingInterval:   parseDuration(v, "WS_PING_INTERVAL", 54*time.Second),
			PongWait:       parseDuration(v, "WS_PONG_WAIT", 60*time.Second),
			WriteWait:      parseDuration(v, "WS_WRITE_WAIT", 10*time.Second),
			MaxMessageSize: v.GetInt64("WS_MAX_MESSAGE_SIZE"),
			SendBuffer:     v.GetInt("WS_SEND_BUFFER"),
		},
		Log: logger.Config{
			Level:       v.GetString("LOG_LEVEL"),
			Pretty:      v.GetBool("LOG_PRETTY"),
			ServiceName: "batchchat",
		},
	}
}

// parseDuration 解析時間設定，格式錯誤或非正值時使用預設值
func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
