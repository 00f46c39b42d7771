// Command logincli drives the login service from a terminal: seed a tenant
// and a user, log in with local or directory credentials, refresh a token
// pair, and log out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	rdb "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-login-service/auth"
	"github.com/jrsteele09/go-login-service/directory"
	"github.com/jrsteele09/go-login-service/internal/config"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/internal/rate"
	"github.com/jrsteele09/go-login-service/tenants"
	"github.com/jrsteele09/go-login-service/tenants/cachedrepo"
	tenantspg "github.com/jrsteele09/go-login-service/tenants/pgrepo"
	tenantrepofakes "github.com/jrsteele09/go-login-service/tenants/repofakes"
	"github.com/jrsteele09/go-login-service/token"
	"github.com/jrsteele09/go-login-service/users"
	userspg "github.com/jrsteele09/go-login-service/users/pgrepo"
	fakeuserrepo "github.com/jrsteele09/go-login-service/users/repofake"
)

type cliOptions struct {
	configPath   string
	seed         bool
	login        string
	password     string
	tenantID     string
	tenantName   string
	useDirectory bool
	refreshToken string
	accessToken  string
	logoutUserID string
	ipAddress    string
	firstName    string
	lastName     string
}

// services bundles everything run needs once wiring is done.
type services struct {
	auth    *auth.Service
	users   users.UserRepo
	tenants tenants.Repo
	cleanup func()
}

func main() {
	_ = godotenv.Load(".env")

	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "path to a YAML config file (environment overrides apply)")
	flag.BoolVar(&opts.seed, "seed", false, "create the tenant and user named by -tenant, -login and -password")
	flag.StringVar(&opts.login, "login", "", "log in as this email or username")
	flag.StringVar(&opts.password, "password", "", "password for -seed or -login")
	flag.StringVar(&opts.tenantID, "tenant", "", "tenant context for the request")
	flag.StringVar(&opts.tenantName, "tenant-name", "", "display name when seeding a tenant (defaults to the tenant id)")
	flag.BoolVar(&opts.useDirectory, "directory", false, "authenticate -login against the configured directory")
	flag.StringVar(&opts.refreshToken, "refresh", "", "refresh token to rotate (requires -access)")
	flag.StringVar(&opts.accessToken, "access", "", "expired access token presented with -refresh")
	flag.StringVar(&opts.logoutUserID, "logout", "", "clear the stored refresh token for this user id")
	flag.StringVar(&opts.ipAddress, "ip", "127.0.0.1", "client address recorded in issued tokens")
	flag.StringVar(&opts.firstName, "first", "", "first name when seeding a user")
	flag.StringVar(&opts.lastName, "last", "", "last name when seeding a user")
	flag.Parse()

	if err := run(opts); err != nil {
		log.Fatalf("logincli: %s\n", err)
	}
}

func run(opts cliOptions) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	displayAppname(cfg.App.Name)

	if err := metrics.Register(nil); err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.cleanup()

	switch {
	case opts.seed:
		return seed(ctx, svc, opts)
	case opts.login != "":
		return doLogin(ctx, svc.auth, opts)
	case opts.refreshToken != "":
		return doRefresh(ctx, svc.auth, opts)
	case opts.logoutUserID != "":
		if err := svc.auth.Logout(ctx, opts.logoutUserID); err != nil {
			return err
		}
		return printJSON(map[string]string{"logged_out": opts.logoutUserID})
	default:
		flag.Usage()
		return errors.New("nothing to do: pass -seed, -login, -refresh or -logout")
	}
}

// buildServices wires the configured storage, directory and limiter into an
// auth service. The cleanup on the result releases any connection pools.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	svc := &services{cleanup: func() {}}

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, errors.Wrap(err, "[buildServices] pgxpool.New")
		}
		svc.cleanup = pool.Close

		pgUsers := userspg.NewPgUserRepo(pool)
		if err := pgUsers.EnsureSchema(ctx); err != nil {
			svc.cleanup()
			return nil, err
		}
		pgTenants := tenantspg.NewPgTenantRepo(pool)
		if err := pgTenants.EnsureSchema(ctx); err != nil {
			svc.cleanup()
			return nil, err
		}
		svc.users = pgUsers
		svc.tenants = cachedrepo.New(pgTenants, cachedrepo.DefaultTTL)
	default:
		svc.users = fakeuserrepo.NewFakeUserRepo()
		svc.tenants = tenantrepofakes.NewFakeTenantRepo()
	}

	signer, err := token.NewHMACSigner(cfg.Token.SigningKey, cfg.Token.SigningAlgorithm)
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(signer,
		token.WithAccessTokenExpiry(cfg.Token.AccessTokenExpiry()),
		token.WithRefreshTokenExpiry(cfg.Token.RefreshTokenExpiry()),
	)
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	options := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithRootTenant(cfg.Security.RootTenantID),
		auth.WithRequireConfirmedEmail(cfg.Security.RequireConfirmedEmail),
	}

	if cfg.Directory.Enabled() {
		dir, err := directory.NewLDAPClient(directory.Config{
			Host:       cfg.Directory.Host,
			Port:       cfg.Directory.Port,
			Domain:     cfg.Directory.Domain,
			SearchBase: cfg.Directory.SearchBase,
			Timeout:    cfg.Directory.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		options = append(options, auth.WithDirectory(dir))
	}

	if cfg.Limiter.Enabled {
		var limiter rate.Limiter
		if cfg.Limiter.RedisAddr != "" {
			client := rdb.NewClient(&rdb.Options{Addr: cfg.Limiter.RedisAddr, Password: cfg.Limiter.RedisPassword})
			limiter = rate.NewRedisLimiter(client, "login", cfg.Limiter.MaxAttempts, cfg.Limiter.Window())
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Limiter.MaxAttempts, cfg.Limiter.Window())
		}
		options = append(options, auth.WithLoginLimiter(limiter))
	}

	svc.auth, err = auth.NewService(auth.Repos{Users: svc.users, Tenants: svc.tenants}, issuer, options...)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// seed creates (or refreshes) the tenant and user named on the command line
// so the login flows have something to authenticate against.
func seed(ctx context.Context, svc *services, opts cliOptions) error {
	if opts.tenantID == "" || opts.login == "" || opts.password == "" {
		return errors.New("[seed] -tenant, -login and -password are required")
	}
	if err := users.ValidatePasswordStrength(opts.password); err != nil {
		return errors.Wrap(err, "[seed] password")
	}

	tenantName := opts.tenantName
	if tenantName == "" {
		tenantName = opts.tenantID
	}
	if err := svc.tenants.Upsert(ctx, &tenants.Tenant{ID: opts.tenantID, Name: tenantName, Active: true}); err != nil {
		return errors.Wrap(err, "[seed] tenants.Upsert")
	}

	hash, err := users.HashPassword(opts.password)
	if err != nil {
		return errors.Wrap(err, "[seed] HashPassword")
	}
	user := &users.User{
		TenantID:       opts.tenantID,
		Username:       opts.login,
		PasswordHash:   hash,
		FirstName:      opts.firstName,
		LastName:       opts.lastName,
		Active:         true,
		EmailConfirmed: true,
		DateJoined:     time.Now(),
	}
	if strings.Contains(opts.login, "@") {
		user.Email = opts.login
		user.Username = ""
	}
	if err := svc.users.Upsert(ctx, user); err != nil {
		return errors.Wrap(err, "[seed] users.Upsert")
	}
	return printJSON(user)
}

func doLogin(ctx context.Context, service *auth.Service, opts cliOptions) error {
	var creds auth.Credentials
	switch {
	case opts.useDirectory:
		creds = auth.DirectoryCredentials{Username: opts.login, Password: opts.password}
	case strings.Contains(opts.login, "@"):
		creds = auth.LocalCredentials{Email: opts.login, Password: opts.password}
	default:
		creds = auth.LocalCredentials{Username: opts.login, Password: opts.password}
	}

	result, err := service.Login(ctx, auth.LoginRequest{
		Credentials: creds,
		TenantID:    opts.tenantID,
		IPAddress:   opts.ipAddress,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func doRefresh(ctx context.Context, service *auth.Service, opts cliOptions) error {
	if opts.accessToken == "" {
		return errors.New("[doRefresh] -refresh requires the expired access token in -access")
	}
	result, err := service.Refresh(ctx, auth.RefreshRequest{
		AccessToken:  opts.accessToken,
		RefreshToken: opts.refreshToken,
		IPAddress:    opts.ipAddress,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[printJSON] MarshalIndent")
	}
	fmt.Println(string(out))
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
