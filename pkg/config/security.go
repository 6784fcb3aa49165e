package config

import (
	"time"

	"github.com/tillgate/tillgate/pkg/kernel"
)

// SecurityConfig holds the credential-hashing pepper, the bearer-token
// settings and the per-role session cookie names. All of it is pass-through
// deployment configuration.
type SecurityConfig struct {
	PinPepper     string
	JWTSecret     string
	JWTIssuer     string
	JWTTTL        time.Duration
	SecureCookies bool
	CookieNames   map[kernel.Role]string
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PinPepper:     getEnv("PIN_PEPPER", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "tillgate"),
		JWTTTL:        getEnvDuration("JWT_TTL", time.Hour),
		SecureCookies: getEnvBool("SECURE_COOKIES", false),
		CookieNames: map[kernel.Role]string{
			kernel.RoleManager: getEnv("COOKIE_NAME_MANAGER", "tg_manager_session"),
			kernel.RoleCashier: getEnv("COOKIE_NAME_CASHIER", "tg_cashier_session"),
			kernel.RoleStaff:   getEnv("COOKIE_NAME_STAFF", "tg_staff_session"),
		},
	}
}
