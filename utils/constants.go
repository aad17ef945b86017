package utils

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// DateLayout is the wire format for calendar dates (vigency bounds, calculation dates)
const DateLayout = "2006-01-02"

// ContextKey namespaces request-scoped values stored in context.Context
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserAgentKey ContextKey = "user_agent"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
	TimeoutKey   ContextKey = "timeout"
	UserIDKey    ContextKey = "user_id"
	TenantIDKey  ContextKey = "tenant_id"
)
