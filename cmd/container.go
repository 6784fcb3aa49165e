// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, mail provider) and
// wires the bounded contexts together. This is the only place that knows
// about ALL modules.
package main

import (
	"context"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/authx"
	"github.com/tillgate/tillgate/pkg/config"
	"github.com/tillgate/tillgate/pkg/directory/directoryinfra"
	"github.com/tillgate/tillgate/pkg/gateway"
	"github.com/tillgate/tillgate/pkg/identity/identityinfra"
	"github.com/tillgate/tillgate/pkg/identity/identitysrv"
	"github.com/tillgate/tillgate/pkg/invite/inviteinfra"
	"github.com/tillgate/tillgate/pkg/invite/invitesrv"
	"github.com/tillgate/tillgate/pkg/notifx"
	"github.com/tillgate/tillgate/pkg/notifx/notifxconsole"
	"github.com/tillgate/tillgate/pkg/notifx/notifxses"
	"github.com/tillgate/tillgate/pkg/pincred"
	"github.com/tillgate/tillgate/pkg/session/sessionredis"
	"github.com/tillgate/tillgate/pkg/session/sessionsrv"
	"github.com/tillgate/tillgate/pkg/tenant/tenantinfra"
	"github.com/tillgate/tillgate/pkg/tenant/tenantsrv"
)

// Container holds shared infrastructure and the composed module services.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB    *sqlx.DB
	Redis *redis.Client

	// Services
	Provisioner *identitysrv.Provisioner
	Tenants     *tenantsrv.Service
	Sessions    *sessionsrv.Manager

	// HTTP surface
	Auth     *authx.Middleware
	Cookies  gateway.CookieConfig
	Accounts *gateway.AccountHandler
	Admin    *gateway.AdminHandler
}

func NewContainer(cfg *config.Config) *Container {
	log.Info().Msg("initializing application container")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	log.Info().Msg("application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	log.Info().Msg("database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis (Redis is required)")
	}
	log.Info().Msg("redis connected")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	// Credential hashing and invite delivery
	hasher := pincred.NewHasher(c.Config.Security.PinPepper)
	mailer := c.newMailer()

	// Identity: profile + directory + invite stores under one tx runner
	profiles := identityinfra.NewPostgresProfileRepository(c.DB)
	dir := directoryinfra.NewPostgresDirectory(c.DB)
	inviteRepo := inviteinfra.NewPostgresTokenRepository(c.DB)
	invites := invitesrv.NewManager(inviteRepo)
	identityTx := identityinfra.NewPostgresTxRunner(c.DB, profiles, dir, inviteRepo)

	// Tenant hierarchy
	orgs := tenantinfra.NewPostgresOrganizationRepository(c.DB)
	branches := tenantinfra.NewPostgresBranchRepository(c.DB)
	tenantTx := tenantinfra.NewPostgresTxRunner(c.DB, orgs, branches, profiles, dir)

	c.Provisioner = identitysrv.NewProvisioner(profiles, dir, invites, identityTx, hasher, mailer, branches)
	c.Tenants = tenantsrv.NewService(orgs, branches, profiles, c.Provisioner, tenantTx)

	// Sessions
	c.Sessions = sessionsrv.NewManager(sessionredis.NewRedisStore(c.Redis))

	// HTTP surface
	tokens := authx.NewJWTService(c.Config.Security.JWTSecret, c.Config.Security.JWTTTL, c.Config.Security.JWTIssuer)
	c.Auth = authx.NewMiddleware(tokens, c.Sessions, profiles)

	c.Cookies = gateway.CookieConfig{
		Names:  c.Config.Security.CookieNames,
		Secure: c.Config.Security.SecureCookies || c.Config.App.IsProduction(),
	}
	c.Accounts = gateway.NewAccountHandler(c.Provisioner, c.Sessions, c.Cookies)
	c.Admin = gateway.NewAdminHandler(c.Tenants)
}

func (c *Container) newMailer() *notifx.InviteMailer {
	var provider notifx.EmailSender

	switch c.Config.Notifier.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
			awsConfig.WithRegion(c.Config.Notifier.AWSRegion))
		if err != nil {
			log.Fatal().Err(err).Msg("unable to load AWS SDK config")
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Notifier.FromAddress)
		log.Info().Str("region", c.Config.Notifier.AWSRegion).Msg("SES mail provider configured")

	case "console":
		provider = notifxconsole.NewConsoleProvider()
		log.Info().Msg("console mail provider configured")

	default:
		log.Fatal().Str("provider", c.Config.Notifier.Provider).
			Msg("unknown notifier provider (use 'console' or 'ses')")
	}

	mailer, err := notifx.NewInviteMailer(provider, c.Config.Notifier.FromAddress, c.Config.App.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build invite mailer")
	}
	return mailer
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Error().Err(err).Msg("error closing database")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("error closing Redis")
		}
	}
}
