package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Password    PasswordConfig
	GCP         GCPConfig
	GCS         GCSConfig
	Minio       MinioConfig
	Storage     StorageConfig
	Media       MediaConfig
	Translation TranslationConfig
	PubSub      PubSubConfig
	BigQuery    BigQueryConfig

	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LUMA_APP_ENV" required:"true"`
	Port         string `envconfig:"LUMA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LUMA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LUMA_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"LUMA_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"LUMA_DB_DSN"`

	Host     string `envconfig:"LUMA_DB_HOST"`
	Port     int    `envconfig:"LUMA_DB_PORT" default:"5432"`
	User     string `envconfig:"LUMA_DB_USER"`
	Password string `envconfig:"LUMA_DB_PASSWORD"`
	Name     string `envconfig:"LUMA_DB_NAME"`
	SSLMode  string `envconfig:"LUMA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LUMA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LUMA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LUMA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LUMA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LUMA_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"LUMA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LUMA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LUMA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LUMA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LUMA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LUMA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LUMA_JWT_ISSUER" default:"lumasites"`
	ExpirationMinutes int    `envconfig:"LUMA_JWT_EXPIRATION_MINUTES" default:"30"`
	RefreshTTLMinutes int    `envconfig:"LUMA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTTLMinutes) * time.Minute
}

// AccessTokenTTL returns the access token TTL configured in minutes.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LUMA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LUMA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LUMA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LUMA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LUMA_ARGON_KEY_LEN" default:"32"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LUMA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LUMA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LUMA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"LUMA_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"LUMA_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	ChunkBytes    int64  `envconfig:"LUMA_GCS_UPLOAD_CHUNK_BYTES" default:"8388608"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"LUMA_MINIO_ENDPOINT"`
	AccessKey string `envconfig:"LUMA_MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"LUMA_MINIO_SECRET_KEY"`
	Bucket    string `envconfig:"LUMA_MINIO_BUCKET"`
	UseSSL    bool   `envconfig:"LUMA_MINIO_USE_SSL" default:"false"`
}

type StorageConfig struct {
	Backend string `envconfig:"LUMA_STORAGE_BACKEND" default:"gcs"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case StorageBackendGCS, StorageBackendMinio:
		return nil
	}
	return fmt.Errorf("unsupported storage backend %q", s.Backend)
}

// MediaConfig carries the media ceilings for every entity kind. The sync
// engine never bakes these in; each editor receives them at construction.
type MediaConfig struct {
	ImageMaxDimension int   `envconfig:"LUMA_MEDIA_IMAGE_MAX_DIMENSION" default:"1920"`
	ImageMaxBytes     int64 `envconfig:"LUMA_MEDIA_IMAGE_MAX_BYTES" default:"1572864"`
	ImageQuality      int   `envconfig:"LUMA_MEDIA_IMAGE_QUALITY" default:"80"`

	ProductMaxImages    int `envconfig:"LUMA_MEDIA_PRODUCT_MAX_IMAGES" default:"10"`
	ProductVideoSeconds int `envconfig:"LUMA_MEDIA_PRODUCT_VIDEO_SECONDS" default:"30"`

	SectionMaxImages    int `envconfig:"LUMA_MEDIA_SECTION_MAX_IMAGES" default:"6"`
	SectionVideoSeconds int `envconfig:"LUMA_MEDIA_SECTION_VIDEO_SECONDS" default:"30"`

	ProjectMaxImages    int `envconfig:"LUMA_MEDIA_PROJECT_MAX_IMAGES" default:"12"`
	ProjectVideoSeconds int `envconfig:"LUMA_MEDIA_PROJECT_VIDEO_SECONDS" default:"60"`

	HeroMaxImages    int `envconfig:"LUMA_MEDIA_HERO_MAX_IMAGES" default:"1"`
	HeroVideoSeconds int `envconfig:"LUMA_MEDIA_HERO_VIDEO_SECONDS" default:"60"`

	StaffMaxImages int `envconfig:"LUMA_MEDIA_STAFF_MAX_IMAGES" default:"1"`

	StoreMaxImages    int `envconfig:"LUMA_MEDIA_STORE_MAX_IMAGES" default:"8"`
	StoreVideoSeconds int `envconfig:"LUMA_MEDIA_STORE_VIDEO_SECONDS" default:"120"`
}

type AuthRateLimitConfig struct {
	LoginWindow time.Duration `envconfig:"LUMA_AUTH_LOGIN_WINDOW" default:"1m"`
	LoginLimit  int64         `envconfig:"LUMA_AUTH_LOGIN_LIMIT" default:"10"`
}

type TranslationConfig struct {
	Endpoint        string        `envconfig:"LUMA_TRANSLATE_ENDPOINT"`
	APIKey          string        `envconfig:"LUMA_TRANSLATE_API_KEY"`
	TargetLanguages []string      `envconfig:"LUMA_TRANSLATE_TARGET_LANGS" default:"es,fr,de,it,pt,ja,ko,zh"`
	Timeout         time.Duration `envconfig:"LUMA_TRANSLATE_TIMEOUT" default:"10s"`
}

type PubSubConfig struct {
	MediaTopic                string `envconfig:"LUMA_PUBSUB_MEDIA_TOPIC" default:"luma-media-committed"`
	EntityDeletedTopic        string `envconfig:"LUMA_PUBSUB_ENTITY_DELETED_TOPIC" default:"luma-entity-deleted"`
	EntityDeletedSubscription string `envconfig:"LUMA_PUBSUB_ENTITY_DELETED_SUBSCRIPTION" default:"luma-entity-deleted-worker"`
}

type BigQueryConfig struct {
	Dataset    string `envconfig:"LUMA_BIGQUERY_DATASET" default:"lumasites"`
	AuditTable string `envconfig:"LUMA_BIGQUERY_AUDIT_TABLE" default:"edit_audit_events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, name := range requiredDBEnvVars {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
