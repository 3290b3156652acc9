package base

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"
)

var Config struct {
	Addr            string `config:"addr" env:"SONGD_ADDR"`
	MainAPI         string `config:"provider.main" env:"SONGD_MAIN_API"`
	FallbackAPI     string `config:"provider.fallback" env:"SONGD_FALLBACK_API"`
	UseIDPrefix     bool   `config:"provider.use_id_prefix" env:"SONGD_USE_ID_PREFIX"`
	RequestTimeout  int    `config:"provider.timeout_seconds" env:"SONGD_REQUEST_TIMEOUT"`
	RedisAddr       string `config:"cache.redis" env:"SONGD_REDIS_ADDR"`
	RedisPassword   string `config:"cache.redis_password" env:"SONGD_REDIS_PASSWORD"`
	PostgresDSN     string `config:"favorites.postgres" env:"SONGD_POSTGRES_DSN"`
	LogLevel        string `config:"log.level" env:"SONGD_LOG_LEVEL"`
	LogPath         string `config:"log.path" env:"SONGD_LOG_PATH"`
	DefaultAlbumArt string `config:"provider.default_album_art" env:"SONGD_DEFAULT_ALBUM_ART"`
}

// InitConfig loads config.json, then lets environment variables (optionally
// provided through a .env file) override individual fields.
func InitConfig() {
	_ = godotenv.Load()

	file, _ := os.ReadFile("config.json")
	g := gjson.Parse(string(file))

	var (
		v = reflect.ValueOf(&Config).Elem()
		t = v.Type()
	)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("config")
		if name == "" {
			continue
		}
		raw := g.Get(name)
		if env := os.Getenv(field.Tag.Get("env")); env != "" {
			raw = gjson.Parse(strconv.Quote(env))
		}
		if !raw.Exists() {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			v.Field(i).SetString(raw.String())
		case reflect.Int:
			v.Field(i).SetInt(raw.Int())
		case reflect.Bool:
			s := strings.TrimSpace(raw.String())
			v.Field(i).SetBool(s == "true" || s == "1")
		default:
			panic("unsupported type")
		}
	}

	if Config.RequestTimeout <= 0 {
		Config.RequestTimeout = 15
	}
	if Config.LogLevel == "" {
		Config.LogLevel = "info"
	}
}
