// Package config loads SDK and example app configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// IDP_CONFIG_FILE, then environment variables:
//
//	IDP_URL="http://127.0.0.1:54321"
//	IDP_ANON_KEY="..."
//	IDP_PRODUCT_ID="..."           # product UUID or client_id
//	IDP_ORGANIZATION_ID="..."      # optional default organization
//	IDP_CLIENT_SECRET="..."        # optional, checked at connect
//	IDP_DATABASE_URL="postgres://..."
//	IDP_JWT_SECRET="..."           # or IDP_JWKS_URL
//	IDP_SESSION_BACKEND="file"     # memory, file, redis, sqlite
//	IDP_SESSION_PATH="~/.idp"
//	IDP_REDIS_URL="redis://localhost:6379/0"
//	IDP_AUTO_REFRESH="true"
//	IDP_LOG_LEVEL="debug"
//	IDP_LOG_FORMAT="json"
//
// LoadConfig validates the result and reports problems as
// CONFIGURATION_ERROR.
package config
