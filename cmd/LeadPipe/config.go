package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/util"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadPipe state data
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultDBFileName is the SQLite database used when DATABASE_URL is unset
	DefaultDBFileName = "leadpipe.db"
	// DefaultProductKey selects dialogue/<product>.flow.json
	DefaultProductKey = "mortgage"
	// DefaultDialogueDir holds the flow documents
	DefaultDialogueDir = "dialogue"

	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
)

// Config holds the runtime configuration, read from the environment (and a
// .env file) and overridden by command-line flags.
type Config struct {
	StateDir    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ProductKey   string
	DialogueDir  string
	DialogueFile string

	UseGemini      bool
	GeminiAPIKey   string
	OpenAIAPIKey   string
	GenAIModel     string
	ClarifyTimeout time.Duration

	Transport         string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioNumber      string
	TwilioSandbox     bool
	TestRecipient     string
	ValidateSignature bool
	PublicWebhookURL  string

	WhatsAppDSN string
	QRPath      string
	NumericCode bool

	APIAddr      string
	CountryCode  string
	OutreachCron string

	LogLevel  string
	LogFormat string
}

// loadConfig reads the environment after loading .env if present.
func loadConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("loadConfig: no .env file loaded", "error", err)
	}

	return Config{
		StateDir:    util.GetenvDefault("LEADPIPE_STATE_DIR", DefaultStateDir),
		DatabaseURL: util.GetenvDefault("DATABASE_URL", ""),

		RedisAddr:     util.GetenvDefault("REDIS_ADDR", ""),
		RedisPassword: util.GetenvDefault("REDIS_PASSWORD", ""),
		RedisDB:       util.ParseIntEnv("REDIS_DB", 0),

		ProductKey:   util.GetenvDefault("PRODUCT_KEY", DefaultProductKey),
		DialogueDir:  util.GetenvDefault("DIALOGUE_DIR", DefaultDialogueDir),
		DialogueFile: util.GetenvDefault("DIALOGUE_FILE", ""),

		UseGemini:      util.ParseBoolEnv("USE_GEMINI", false),
		GeminiAPIKey:   util.GetenvDefault("GEMINI_API_KEY", ""),
		OpenAIAPIKey:   util.GetenvDefault("OPENAI_API_KEY", ""),
		GenAIModel:     util.GetenvDefault("GENAI_MODEL", ""),
		ClarifyTimeout: util.ParseDurationEnv("CLARIFY_TIMEOUT", dialogue.DefaultClarifyTimeout),

		Transport:         strings.ToLower(util.GetenvDefault("WHATSAPP_TRANSPORT", TransportTwilio)),
		TwilioAccountSID:  util.GetenvDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   util.GetenvDefault("TWILIO_AUTH_TOKEN", ""),
		TwilioNumber:      util.GetenvDefault("TWILIO_WHATSAPP_NUMBER", ""),
		TwilioSandbox:     util.ParseBoolEnv("TWILIO_SANDBOX", false),
		TestRecipient:     util.GetenvDefault("TEST_RECIPIENT_NUMBER", ""),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		PublicWebhookURL:  util.GetenvDefault("PUBLIC_WEBHOOK_URL", ""),

		WhatsAppDSN: util.GetenvDefault("WHATSAPP_DB_DSN", ""),

		APIAddr:      util.GetenvDefault("API_ADDR", api.DefaultAddr),
		CountryCode:  util.GetenvDefault("DEFAULT_COUNTRY_CODE", contacts.DefaultCountryCode),
		OutreachCron: util.GetenvDefault("OUTREACH_CRON", ""),

		LogLevel:  util.GetenvDefault("LOG_LEVEL", "info"),
		LogFormat: util.GetenvDefault("LOG_FORMAT", "text"),
	}
}

// SQLDSN is the database holding contacts and message ids: DATABASE_URL, or
// a SQLite file in the state directory.
func (c Config) SQLDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// WhatsmeowDSN is the whatsmeow device store.
func (c Config) WhatsmeowDSN() string {
	if c.WhatsAppDSN != "" {
		return c.WhatsAppDSN
	}
	return filepath.Join(c.StateDir, filepath.Base(whatsapp.DefaultSQLitePath))
}

// FlowPath resolves the flow document for the configured product.
func (c Config) FlowPath() string {
	return flow.ResolvePath(c.DialogueDir, c.ProductKey, c.DialogueFile)
}

// validateTransport checks that the selected transport can be built.
func (c Config) validateTransport() error {
	switch c.Transport {
	case TransportTwilio:
		var missing []string
		if c.TwilioAccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if c.TwilioAuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if c.TwilioNumber == "" {
			missing = append(missing, "TWILIO_WHATSAPP_NUMBER")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
		}
		if c.TwilioSandbox && c.TestRecipient == "" {
			slog.Warn("Config: TWILIO_SANDBOX is on but TEST_RECIPIENT_NUMBER is empty; all sends will be blocked")
		}
		return nil
	case TransportWhatsmeow:
		return nil
	default:
		return fmt.Errorf("unknown WHATSAPP_TRANSPORT %q (want %s or %s)", c.Transport, TransportTwilio, TransportWhatsmeow)
	}
}

// logSummary logs the effective configuration with secrets masked.
func (c Config) logSummary() {
	slog.Info("LeadPipe configuration",
		"state_dir", c.StateDir,
		"database", util.MaskSecret(c.DatabaseURL),
		"sql_driver", sqlDriver(c.SQLDSN()),
		"redis_addr", c.RedisAddr,
		"product", c.ProductKey,
		"flow", c.FlowPath(),
		"genai", c.genAIProvider(),
		"openai_api_key", util.MaskSecret(c.OpenAIAPIKey),
		"gemini_api_key", util.MaskSecret(c.GeminiAPIKey),
		"transport", c.Transport,
		"twilio_account_sid", util.MaskSecret(c.TwilioAccountSID),
		"twilio_auth_token", util.MaskSecret(c.TwilioAuthToken),
		"twilio_number", c.TwilioNumber,
		"twilio_sandbox", c.TwilioSandbox,
		"validate_signature", c.ValidateSignature,
		"api_addr", c.APIAddr,
		"country_code", c.CountryCode,
		"outreach_cron", c.OutreachCron)
}

func (c Config) genAIProvider() string {
	if c.UseGemini {
		return "gemini"
	}
	return "openai"
}

// parseLogLevel maps a level name to slog.Level.
func parseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
