package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/pgstore"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	// ErrParse is returned when an environment variable cannot be parsed.
	ErrParse = errors.New("envconfig: parse environment")
	// ErrInvalid is returned when parsed settings are inconsistent.
	ErrInvalid = errors.New("envconfig: invalid settings")
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// Mail drivers accepted by MAIL_DRIVER.
const (
	MailLog      = "log"
	MailDev      = "dev"
	MailPostmark = "postmark"
)

// Settings is the full process configuration.
type Settings struct {
	AppName  string `env:"APP_NAME"`
	HTTPAddr string `env:"HTTP_ADDR"`

	Log      LogSettings
	JWT      JWTSettings
	Password PasswordSettings
	OTP      OTPSettings
	Security SecuritySettings
	Store    StoreSettings
	Mail     MailSettings
	Google   GoogleSettings

	NotifyPolicy   string        `env:"NOTIFY_POLICY"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT"`
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT"`
	AuditEnabled   bool          `env:"AUDIT_ENABLED"`
	AuditBuffer    int           `env:"AUDIT_BUFFER_SIZE"`
	AuditTimeout   time.Duration `env:"AUDIT_SINK_TIMEOUT"`
	MetricsEnabled bool          `env:"METRICS_ENABLED"`
	MetricsLatency bool          `env:"METRICS_LATENCY"`
}

type LogSettings struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// JWTSettings carries key material as text. HS256 keys are the raw secret;
// Ed25519 keys are PEM.
type JWTSettings struct {
	SigningMethod string        `env:"JWT_SIGNING_METHOD"`
	PrivateKey    string        `env:"JWT_PRIVATE_KEY,unset"`
	PublicKey     string        `env:"JWT_PUBLIC_KEY"`
	Issuer        string        `env:"JWT_ISSUER"`
	Audience      string        `env:"JWT_AUDIENCE"`
	KeyID         string        `env:"JWT_KEY_ID"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL"`
	Leeway        time.Duration `env:"JWT_LEEWAY"`
	RotateRefresh bool          `env:"JWT_ROTATE_REFRESH"`
	RequireIAT    bool          `env:"JWT_REQUIRE_IAT"`
	MaxFutureIAT  time.Duration `env:"JWT_MAX_FUTURE_IAT"`
}

type PasswordSettings struct {
	Memory      uint32 `env:"ARGON2_MEMORY_KB"`
	Time        uint32 `env:"ARGON2_TIME"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM"`
	MinLength   int    `env:"PASSWORD_MIN_LENGTH"`
	MaxLength   int    `env:"PASSWORD_MAX_LENGTH"`
}

type OTPSettings struct {
	Length       int           `env:"OTP_LENGTH"`
	Alphanumeric bool          `env:"OTP_ALPHANUMERIC"`
	TTL          time.Duration `env:"OTP_TTL"`
	ResetTTL     time.Duration `env:"OTP_RESET_TTL"`
}

type SecuritySettings struct {
	RedisPrefix          string        `env:"AUTH_REDIS_PREFIX"`
	MaxLoginAttempts     int           `env:"AUTH_MAX_LOGIN_ATTEMPTS"`
	LoginCooldown        time.Duration `env:"AUTH_LOGIN_COOLDOWN"`
	MaxCodeAttempts      int           `env:"AUTH_MAX_CODE_ATTEMPTS"`
	CodeCooldown         time.Duration `env:"AUTH_CODE_COOLDOWN"`
	IPThrottle           bool          `env:"AUTH_IP_THROTTLE"`
	RevokeRefreshOnReset bool          `env:"AUTH_REVOKE_REFRESH_ON_RESET"`
	RequireVerifiedOAuth bool          `env:"AUTH_OAUTH_REQUIRE_VERIFIED_EMAIL"`
}

type StoreSettings struct {
	Backend       string `env:"STORE_BACKEND"`
	RedisURL      string `env:"REDIS_URL,unset"`
	SQLitePath    string `env:"SQLITE_PATH"`
	MongoURL      string `env:"MONGO_URL,unset"`
	MongoDatabase string `env:"MONGO_DATABASE"`
	Postgres      pgstore.Config
}

type MailSettings struct {
	Driver              string `env:"MAIL_DRIVER"`
	DevDir              string `env:"MAIL_DEV_DIR"`
	From                string `env:"MAIL_FROM"`
	ReplyTo             string `env:"MAIL_REPLY_TO"`
	PostmarkServerToken string `env:"POSTMARK_SERVER_TOKEN,unset"`
	PostmarkAcctToken   string `env:"POSTMARK_ACCOUNT_TOKEN,unset"`
}

// GoogleSettings enables Google sign-in when ClientID is set.
type GoogleSettings struct {
	ClientID     string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string        `env:"GOOGLE_CLIENT_SECRET,unset"`
	RedirectURL  string        `env:"GOOGLE_REDIRECT_URL"`
	StateTTL     time.Duration `env:"GOOGLE_STATE_TTL"`
}

// Defaults returns settings matching authcore.DefaultConfig plus the
// process defaults of the binaries.
func Defaults() Settings {
	def := authcore.DefaultConfig()
	return Settings{
		AppName:  "authcore",
		HTTPAddr: ":8080",
		Log:      LogSettings{Level: "info", Format: FormatJSON},
		JWT: JWTSettings{
			SigningMethod: def.JWT.SigningMethod,
			AccessTTL:     def.JWT.AccessTTL,
			RefreshTTL:    def.JWT.RefreshTTL,
			Leeway:        def.JWT.Leeway,
			RotateRefresh: def.JWT.RotateRefreshOnUse,
			RequireIAT:    def.JWT.RequireIAT,
			MaxFutureIAT:  def.JWT.MaxFutureIAT,
		},
		Password: PasswordSettings{
			Memory:      def.Password.Memory,
			Time:        def.Password.Time,
			Parallelism: def.Password.Parallelism,
			MinLength:   def.Password.MinLength,
			MaxLength:   def.Password.MaxLength,
		},
		OTP: OTPSettings{
			Length:       def.OTP.Length,
			Alphanumeric: def.OTP.Alphanumeric,
			TTL:          def.OTP.TTL,
			ResetTTL:     def.OTP.ResetTTL,
		},
		Security: SecuritySettings{
			RedisPrefix:          def.Security.RedisPrefix,
			MaxLoginAttempts:     def.Security.MaxLoginAttempts,
			LoginCooldown:        def.Security.LoginCooldownDuration,
			MaxCodeAttempts:      def.Security.MaxCodeAttempts,
			CodeCooldown:         def.Security.CodeCooldownDuration,
			IPThrottle:           def.Security.EnableIPThrottle,
			RevokeRefreshOnReset: def.Security.RevokeRefreshOnReset,
			RequireVerifiedOAuth: def.OAuth.RequireVerifiedEmail,
		},
		Store: StoreSettings{
			Backend:       BackendMemory,
			SQLitePath:    "authcore.db",
			MongoDatabase: "authcore",
			Postgres: pgstore.Config{
				MaxConns:        10,
				MinConns:        2,
				MaxConnIdleTime: 10 * time.Minute,
				MaxConnLifetime: 30 * time.Minute,
				RetryAttempts:   3,
				RetryInterval:   2 * time.Second,
			},
		},
		Mail: MailSettings{
			Driver: MailLog,
			DevDir: "mail",
			From:   "no-reply@localhost",
		},
		Google: GoogleSettings{
			StateTTL: 10 * time.Minute,
		},
		NotifyPolicy:   "best_effort",
		StoreTimeout:   def.Timeouts.Store,
		NotifyTimeout:  def.Timeouts.Notification,
		AuditEnabled:   def.Audit.Enabled,
		AuditBuffer:    def.Audit.BufferSize,
		AuditTimeout:   def.Audit.SinkTimeout,
		MetricsEnabled: true,
		MetricsLatency: true,
	}
}

// Load reads the given .env files (".env" when none are named), then parses
// the environment over Defaults. Missing .env files are ignored and variables
// already set in the process win over file values.
func Load(files ...string) (Settings, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, errors.Join(ErrParse, fmt.Errorf("load %s: %w", f, err))
		}
	}
	return Parse()
}

// Parse reads the process environment over Defaults without touching .env
// files.
func Parse() (Settings, error) {
	s := Defaults()
	if err := env.Parse(&s); err != nil {
		return Settings{}, errors.Join(ErrParse, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings that authcore.Config.Validate does not cover.
func (s Settings) Validate() error {
	switch s.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.Store.RedisURL == "" {
			return invalid("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if s.Store.Postgres.URL == "" {
			return invalid("POSTGRES_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(s.Store.SQLitePath) == "" {
			return invalid("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMongo:
		if s.Store.MongoURL == "" || s.Store.MongoDatabase == "" {
			return invalid("MONGO_URL and MONGO_DATABASE are required for the mongo backend")
		}
	default:
		return invalid(fmt.Sprintf("unknown STORE_BACKEND %q", s.Store.Backend))
	}

	switch s.Mail.Driver {
	case MailLog:
	case MailDev:
		if s.Mail.DevDir == "" {
			return invalid("MAIL_DEV_DIR is required for the dev mail driver")
		}
	case MailPostmark:
		if s.Mail.PostmarkServerToken == "" {
			return invalid("POSTMARK_SERVER_TOKEN is required for the postmark mail driver")
		}
	default:
		return invalid(fmt.Sprintf("unknown MAIL_DRIVER %q", s.Mail.Driver))
	}

	if _, err := s.notificationPolicy(); err != nil {
		return err
	}
	if _, err := parseLevel(s.Log.Level); err != nil {
		return err
	}
	if s.Log.Format != FormatJSON && s.Log.Format != FormatText {
		return invalid(fmt.Sprintf("unknown LOG_FORMAT %q", s.Log.Format))
	}
	if s.Google.ClientID != "" && (s.Google.ClientSecret == "" || s.Google.RedirectURL == "") {
		return invalid("GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are required with GOOGLE_CLIENT_ID")
	}
	return nil
}

func (s Settings) notificationPolicy() (authcore.NotificationPolicy, error) {
	switch strings.ToLower(s.NotifyPolicy) {
	case "best_effort", "":
		return authcore.NotifyBestEffort, nil
	case "required":
		return authcore.NotifyRequired, nil
	default:
		return 0, invalid(fmt.Sprintf("unknown NOTIFY_POLICY %q", s.NotifyPolicy))
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}
