package config

const (
	EnvPrefix = "VENDORISLAND"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	FeePolicyReserved = "reserved"
	FeePolicySeparate = "separate"

	EnvAppEnv = "VENDORISLAND_APP_ENV"
	EnvPort   = "VENDORISLAND_APP_PORT"

	EnvDBDSN  = "VENDORISLAND_DB_DSN"
	EnvDBHost = "VENDORISLAND_DB_HOST"
	EnvDBUser = "VENDORISLAND_DB_USER"
	EnvDBName = "VENDORISLAND_DB_NAME"

	EnvRedisURL = "VENDORISLAND_REDIS_URL"

	EnvJWTSecret = "VENDORISLAND_JWT_SECRET"
	EnvJWTIssuer = "VENDORISLAND_JWT_ISSUER"

	EnvWalletFeePolicy = "VENDORISLAND_WALLET_FEE_POLICY"
	EnvWalletNegative  = "VENDORISLAND_WALLET_ALLOW_NEGATIVE"

	EnvWalletPlatformFeeBps   = "VENDORISLAND_WALLET_PLATFORM_FEE_BPS"
	EnvWalletPlatformFeeFixed = "VENDORISLAND_WALLET_PLATFORM_FEE_FIXED_CENTS"

	EnvGCPProjectID = "VENDORISLAND_GCP_PROJECT_ID"

	EnvPubSubDomainTopic   = "VENDORISLAND_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubAnalyticsSub  = "VENDORISLAND_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvBigQueryLedgerTable = "VENDORISLAND_BIGQUERY_LEDGER_TABLE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
