package config

// Documented defaults applied by Load for unset fields.
const (
	DefaultAddr            = "127.0.0.1:8090"
	DefaultDeviceUsername  = "device"
	DefaultTenantUsername  = "tenant"
	DefaultSessionTTLDays  = 30
	DefaultSessionCapacity = 100
	DefaultHistoryCapacity = 1024
	DefaultLoginPerMinute  = 5
)
