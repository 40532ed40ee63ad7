package config

const (
	// EnvPrefix namespaces every environment variable consumed by the service.
	EnvPrefix = "opticore"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "OPTICORE_DB_DSN"
	EnvDBHost = "OPTICORE_DB_HOST"
	EnvDBUser = "OPTICORE_DB_USER"
	EnvDBName = "OPTICORE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
