package config

const EnvPrefix = "LUMA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageBackendGCS   = "gcs"
	StorageBackendMinio = "minio"
)

const (
	EnvDBDSN  = "LUMA_DB_DSN"
	EnvDBHost = "LUMA_DB_HOST"
	EnvDBUser = "LUMA_DB_USER"
	EnvDBName = "LUMA_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
