package mongodb

const (
	MethodConfigsCollection = "auth_method_configs" // Per-owner method configurations
	AccessTokensCollection  = "access_tokens"       // Machine token ledger
	ConfigUsageCollection   = "config_usage"        // Per-config mint counters
)
