// Package authctl implements the authctl operator tool: one command per
// invocation against the identity provider and resource API configured in
// the environment. The session survives between invocations through the
// token file and the session metadata breadcrumb.
package authctl

import (
	"errors"
	"flag"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrymomot/scanauth/pkg/backend"
	"github.com/dmitrymomot/scanauth/pkg/identity"
	"github.com/dmitrymomot/scanauth/pkg/limits"
	"github.com/dmitrymomot/scanauth/pkg/logger"
	"github.com/dmitrymomot/scanauth/pkg/resource"
	"github.com/dmitrymomot/scanauth/pkg/sessionmeta"
	"github.com/dmitrymomot/scanauth/pkg/usage"
	"github.com/dmitrymomot/scanauth/svc/auth"
)

// Commands understood by Run.
const (
	CmdStatus        = "status"
	CmdSignIn        = "signin"
	CmdSignUp        = "signup"
	CmdVerify        = "verify"
	CmdSignOut       = "signout"
	CmdResetPassword = "reset-password"
	CmdUsage         = "usage"
	CmdLog           = "log"
	CmdLimits        = "limits"
)

var commands = []string{CmdStatus, CmdSignIn, CmdSignUp, CmdVerify, CmdSignOut, CmdResetPassword, CmdUsage, CmdLog, CmdLimits}

var (
	ErrUnknownCommand = errors.New("authctl.unknown_command")
	ErrMissingFlag    = errors.New("authctl.missing_flag")
	ErrUnknownBackend = errors.New("authctl.unknown_backend")
)

// Config holds the command line of one invocation.
type Config struct {
	Command     string
	EnvFile     string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Company     string
	Action      string
	ResourceID  string
	Plan        string
	OTPType     string
	OTP         string
	RedirectTo  string
	Timeout     time.Duration
	MetricsFile string
}

// ParseConfig parses flags and the command argument into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{EnvFile: ".env", Action: "analysis", OTPType: "signup", Timeout: time.Minute}
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "dotenv file loaded before the environment is parsed")
	fs.StringVar(&cfg.Email, "email", "", "account email")
	fs.StringVar(&cfg.Password, "password", "", "account password")
	fs.StringVar(&cfg.FirstName, "first-name", "", "first name captured at sign-up")
	fs.StringVar(&cfg.LastName, "last-name", "", "last name captured at sign-up")
	fs.StringVar(&cfg.Company, "company", "", "company captured at sign-up")
	fs.StringVar(&cfg.Action, "action", cfg.Action, "usage action to count or log")
	fs.StringVar(&cfg.ResourceID, "resource", "", "resource id attached to a logged action")
	fs.StringVar(&cfg.Plan, "plan", "", "plan to describe instead of the current one")
	fs.StringVar(&cfg.OTPType, "otp-type", cfg.OTPType, "verification type: signup, magiclink or recovery")
	fs.StringVar(&cfg.OTP, "otp", "", "verification code from the email")
	fs.StringVar(&cfg.RedirectTo, "redirect", "", "password reset redirect url")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall deadline for the command")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Command = fs.Arg(0)
	if cfg.Command == "" {
		cfg.Command = CmdStatus
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !slices.Contains(commands, c.Command) {
		return fmt.Errorf("%w: %q (want one of %v)", ErrUnknownCommand, c.Command, commands)
	}

	var missing []string
	need := func(name, v string) {
		if v == "" {
			missing = append(missing, "-"+name)
		}
	}
	switch c.Command {
	case CmdSignIn, CmdSignUp:
		need("email", c.Email)
		need("password", c.Password)
	case CmdVerify:
		need("email", c.Email)
		need("otp", c.OTP)
	case CmdResetPassword:
		need("email", c.Email)
	case CmdLog:
		need("action", c.Action)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %v", ErrMissingFlag, c.Command, missing)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: -timeout must be positive", ErrMissingFlag)
	}
	return nil
}

// Env is the stack configuration read from the environment.
type Env struct {
	Auth     auth.Config
	Identity identity.Config
	Backend  backend.Config
	Resource resource.Config
	Meta     sessionmeta.Config
	Usage    usage.Config
	Limits   limits.Config
	Log      LogConfig
	Stores   StoreConfig
}

// LogConfig selects the diagnostic log output written to stderr.
type LogConfig struct {
	Level  string        `env:"LOG_LEVEL" envDefault:"warn"`
	Format logger.Format `env:"LOG_FORMAT" envDefault:"text"`
}

// StoreConfig picks the backends of the profile store, the usage log and
// the pending profile update slot.
type StoreConfig struct {
	Profiles   string        `env:"AUTHCTL_PROFILE_STORE" envDefault:"rest"` // rest or pg
	Usage      string        `env:"AUTHCTL_USAGE_LOG" envDefault:"rest"`     // rest or pg
	Pending    string        `env:"AUTHCTL_PENDING_STORE" envDefault:"memory"` // memory or redis
	PendingKey string        `env:"AUTHCTL_PENDING_KEY" envDefault:"scanauth:pending-profile"`
	PendingTTL time.Duration `env:"AUTHCTL_PENDING_TTL" envDefault:"24h"`
	TokenFile  string        `env:"AUTHCTL_TOKEN_FILE" envDefault:".scanauth/tokens.json"`
}

func (s StoreConfig) validate() error {
	var errs []error
	if s.Profiles != "rest" && s.Profiles != "pg" {
		errs = append(errs, fmt.Errorf("%w: profile store %q", ErrUnknownBackend, s.Profiles))
	}
	if s.Usage != "rest" && s.Usage != "pg" {
		errs = append(errs, fmt.Errorf("%w: usage log %q", ErrUnknownBackend, s.Usage))
	}
	if s.Pending != "memory" && s.Pending != "redis" {
		errs = append(errs, fmt.Errorf("%w: pending store %q", ErrUnknownBackend, s.Pending))
	}
	return errors.Join(errs...)
}

func (s StoreConfig) needsPostgres() bool {
	return s.Profiles == "pg" || s.Usage == "pg"
}
