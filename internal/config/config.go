package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const appName = "tgmail"

// Config is everything the bot needs at startup. Secrets normally come from
// the environment (or .env); the TOML file holds the rest.
type Config struct {
	TelegramToken string `toml:"telegram_token"`

	SMTPHost     string   `toml:"smtp_host"`
	SMTPPort     int      `toml:"smtp_port"`
	SMTPLogin    string   `toml:"smtp_login"`
	SMTPPassword string   `toml:"smtp_password"`
	SMTPFrom     string   `toml:"smtp_from"`
	SMTPHelo     string   `toml:"smtp_helo"`
	SMTPTimeout  Duration `toml:"smtp_timeout"`
	MailSubject  string   `toml:"mail_subject"`

	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogMessageBodies bool   `toml:"log_message_bodies"`

	IdleTimeout Duration `toml:"idle_timeout"`
	Workers     int      `toml:"workers"`
	StatusAddr  string   `toml:"status_addr"`
}

// Duration reads "90s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func defaults() Config {
	return Config{
		SMTPHost:    "smtp.yandex.ru",
		SMTPPort:    587,
		SMTPHelo:    "localhost",
		SMTPTimeout: Duration{2 * time.Minute},
		MailSubject: "Message from Telegram bot",
		LogLevel:    "info",
		LogFile:     "bot.log",
		IdleTimeout: Duration{30 * time.Minute},
		Workers:     4,
	}
}

// Load reads .env into the process environment (without overriding what is
// already set), then the optional config file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(os.LookupEnv, Path())
}

// Path is $TGMAIL_CONFIG, or config.toml under the XDG config directory.
func Path() string {
	if p := os.Getenv("TGMAIL_CONFIG"); p != "" {
		return p
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, appName, "config.toml")
}

func load(lookup func(string) (string, bool), path string) (*Config, error) {
	c := defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &c)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", path, err)
		default:
			if und := md.Undecoded(); len(und) > 0 {
				return nil, fmt.Errorf("read %s: unknown keys %v", path, und)
			}
		}
	}

	e := envReader{lookup: lookup}
	e.str("TELEGRAM_API_TOKEN", &c.TelegramToken)
	e.str("SMTP_HOST", &c.SMTPHost)
	e.intVal("SMTP_PORT", &c.SMTPPort)
	e.str("SMTP_LOGIN", &c.SMTPLogin)
	e.str("SMTP_PASSWORD", &c.SMTPPassword)
	e.str("SMTP_FROM", &c.SMTPFrom)
	e.str("SMTP_HELO", &c.SMTPHelo)
	e.duration("SMTP_TIMEOUT", &c.SMTPTimeout)
	e.str("MAIL_SUBJECT", &c.MailSubject)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FILE", &c.LogFile)
	e.boolVal("LOG_MESSAGE_BODIES", &c.LogMessageBodies)
	e.duration("IDLE_TIMEOUT", &c.IdleTimeout)
	e.intVal("WORKERS", &c.Workers)
	e.str("STATUS_ADDR", &c.StatusAddr)
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	if c.SMTPFrom == "" {
		c.SMTPFrom = c.SMTPLogin
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate fails on anything that would only surface on first use.
func (c *Config) Validate() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_API_TOKEN")
	}
	if c.SMTPLogin == "" {
		missing = append(missing, "SMTP_LOGIN")
	}
	if c.SMTPPassword == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if c.SMTPHost == "" {
		return errors.New("SMTP_HOST must not be empty")
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT %d out of range", c.SMTPPort)
	}
	if c.SMTPTimeout.Duration <= 0 {
		return errors.New("SMTP_TIMEOUT must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.IdleTimeout.Duration < 0 {
		return errors.New("IDLE_TIMEOUT must not be negative")
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVal(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) boolVal(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	dst.Duration = d
}
