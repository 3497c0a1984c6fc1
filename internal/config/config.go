package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database settings depend on DBDriver: MySQL uses
// the host/port/user fields while SQLite only needs DBPath.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	WSPort         string        // port of the notification WebSocket server
	WSRequireAuth  bool          // register messages must carry the user's bearer token
	DBDriver       string        // "mysql" or "sqlite"
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	DBPath         string        // sqlite database file
	JWTSecret      string        // secret used to sign JWTs
	TokenTTL       time.Duration // lifetime of issued bearer tokens
	BcryptCost     int           // bcrypt cost for password hashing
	PasswordPepper string        // appended to passwords before hashing
	GoogleClientID string        // audience for Google ID tokens; empty disables Google login
	UploadDir      string        // directory holding uploaded photos
	MaxUploadBytes int64         // maximum accepted photo size
	AddressAPIURL  string        // open-data endpoint listing cities and postal codes
	AMQPURL        string        // RabbitMQ URL; empty disables the broker path
}

// DefaultAddressAPI lists French communes with their postal codes.
const DefaultAddressAPI = "https://geo.api.gouv.fr/communes?fields=nom,codesPostaux&format=json"

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := LoadStorage()
	cfg.Env = must("APP_ENV")
	cfg.Port = must("APP_PORT")
	cfg.WSPort = getenv("WS_PORT", "8081")
	cfg.WSRequireAuth = envBool("WS_REQUIRE_AUTH", true)
	cfg.JWTSecret = must("JWT_SECRET")
	cfg.TokenTTL = time.Duration(envInt("TOKEN_TTL_HOURS", 24)) * time.Hour
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.UploadDir = getenv("UPLOAD_DIR", "uploads")
	cfg.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", 5<<20))
	cfg.AMQPURL = amqpURL()
	return cfg
}

// LoadStorage reads only what offline tools need: the database, password
// hashing and the address source.
func LoadStorage() Config {
	cfg := Config{
		DBDriver:       strings.ToLower(getenv("DB_DRIVER", "mysql")),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		PasswordPepper: os.Getenv("PASSWORD_PEPPER"),
		AddressAPIURL:  getenv("ADDRESS_API_URL", DefaultAddressAPI),
	}
	switch cfg.DBDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case "sqlite":
		cfg.DBPath = getenv("DB_PATH", "donation.db")
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
	}
	return cfg
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return c.Env == "prod" || c.Env == "production" }

func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
