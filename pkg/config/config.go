package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Validate RateLimitBucketConfig `yaml:"validate"`
}

// OCRConfig points at the text-extraction provider (a Vision-style
// images:annotate REST endpoint).
type OCRConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"apiKey"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// NERConfig points at the entity-extraction provider (a Gemini-style
// generateContent REST endpoint).
type NERConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"apiKey"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// StorageConfig controls best-effort document retention in object storage.
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// OracleConfig gates and parameterizes the on-chain confirmation path.
// When Enabled is false the pipeline returns the verdict without touching
// the chain at all.
type OracleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RPCURL          string `yaml:"rpcUrl"`
	ContractAddress string `yaml:"contractAddress"`
	PrivateKey      string `yaml:"privateKey"`
	ChainID         int64  `yaml:"chainId"`
	GasLimit        uint64 `yaml:"gasLimit"`

	// MaxAttempts bounds broadcast cycles per submission (initial send plus
	// same-nonce fee-bumped replacements).
	MaxAttempts int `yaml:"maxAttempts"`
	// FeeBumpPercent is applied to the gas price on every re-broadcast; most
	// nodes refuse same-nonce replacements below a 10% bump.
	FeeBumpPercent int64 `yaml:"feeBumpPercent"`

	ReceiptWaitSeconds  int    `yaml:"receiptWaitSeconds"`
	PollBaseMillis      int    `yaml:"pollBaseMillis"`
	PollMaxMillis       int    `yaml:"pollMaxMillis"`
	BackoffPolicy       string `yaml:"backoffPolicy"`
	KeyIncludesDocument bool   `yaml:"keyIncludesDocument"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	OTLPInsecure bool    `yaml:"otlpInsecure"`
	SampleRatio  float64 `yaml:"sampleRatio"`
}

type Config struct {
	Port          int    `yaml:"port"`
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// APIAuthProvider selects the auth validator ("static" API key by default,
	// "jwks" for federated deployments). APIAuthConfig is provider-specific.
	APIAuthProvider string          `yaml:"apiAuthProvider"`
	APIAuthConfig   json.RawMessage `yaml:"apiAuthConfig"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	OCR       OCRConfig       `yaml:"ocr"`
	NER       NERConfig       `yaml:"ner"`
	Storage   StorageConfig   `yaml:"storage"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// LoadConfigOptional loads configuration from an optional yaml file, then a
// local .env file (best effort), then environment variables, then defaults.
func LoadConfigOptional(filePath string) (*Config, error) {
	_ = godotenv.Load()

	var c Config
	filePath = strings.TrimSpace(filePath)
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filePath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", filePath, err)
		}
	}

	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIAuthProvider = "static"
		c.APIAuthConfig = json.RawMessage(strconv.Quote(v))
	}
	if v := os.Getenv("OCR_URL"); v != "" {
		c.OCR.URL = v
	}
	if v := os.Getenv("OCR_API_KEY"); v != "" {
		c.OCR.APIKey = v
	}
	if v := os.Getenv("NER_URL"); v != "" {
		c.NER.URL = v
	}
	if v := os.Getenv("NER_API_KEY"); v != "" {
		c.NER.APIKey = v
	}
	if v := os.Getenv("NER_MODEL"); v != "" {
		c.NER.Model = v
	}
	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("ORACLE_ENABLED"); v != "" {
		c.Oracle.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ORACLE_RPC_URL"); v != "" {
		c.Oracle.RPCURL = v
	}
	if v := os.Getenv("ORACLE_CONTRACT_ADDRESS"); v != "" {
		c.Oracle.ContractAddress = v
	}
	if v := os.Getenv("ORACLE_PRIVATE_KEY"); v != "" {
		c.Oracle.PrivateKey = v
	}
	if v := os.Getenv("ORACLE_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Oracle.ChainID = n
		}
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.APIAuthProvider == "" {
		c.APIAuthProvider = "static"
	}
	if c.OCR.TimeoutSeconds <= 0 {
		c.OCR.TimeoutSeconds = 60
	}
	if c.NER.TimeoutSeconds <= 0 {
		c.NER.TimeoutSeconds = 60
	}
	if c.NER.Model == "" {
		c.NER.Model = "gemini-flash-lite-latest"
	}
	if c.Oracle.ChainID == 0 {
		c.Oracle.ChainID = 1
	}
	if c.Oracle.GasLimit == 0 {
		c.Oracle.GasLimit = 300000
	}
	if c.Oracle.MaxAttempts <= 0 {
		c.Oracle.MaxAttempts = 3
	}
	if c.Oracle.FeeBumpPercent <= 0 {
		c.Oracle.FeeBumpPercent = 15
	}
	if c.Oracle.ReceiptWaitSeconds <= 0 {
		c.Oracle.ReceiptWaitSeconds = 120
	}
	if c.Oracle.PollBaseMillis <= 0 {
		c.Oracle.PollBaseMillis = 500
	}
	if c.Oracle.PollMaxMillis <= 0 {
		c.Oracle.PollMaxMillis = 10000
	}
	if c.Oracle.BackoffPolicy == "" {
		c.Oracle.BackoffPolicy = "exponential"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "oraculo"
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
}

func (c *Config) Validate() error {
	var errs []string
	dev := strings.ToLower(strings.TrimSpace(c.Env)) == "dev"

	if c.OCR.URL == "" && !dev {
		errs = append(errs, "ocr.url is required in non-dev")
	} else if c.OCR.URL != "" {
		if err := checkHTTPURL(c.OCR.URL); err != nil {
			errs = append(errs, "ocr.url "+err.Error())
		}
	}
	if c.NER.URL == "" && !dev {
		errs = append(errs, "ner.url is required in non-dev")
	} else if c.NER.URL != "" {
		if err := checkHTTPURL(c.NER.URL); err != nil {
			errs = append(errs, "ner.url "+err.Error())
		}
	}

	if c.Oracle.Enabled {
		if c.Oracle.RPCURL == "" {
			errs = append(errs, "oracle.rpcUrl is required when the oracle is enabled")
		}
		if c.Oracle.ContractAddress == "" {
			errs = append(errs, "oracle.contractAddress is required when the oracle is enabled")
		}
		if c.Oracle.PrivateKey == "" {
			errs = append(errs, "oracle.privateKey is required when the oracle is enabled")
		}
	}

	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" {
			errs = append(errs, "storage.endpoint is required when storage is enabled")
		}
		if c.Storage.Bucket == "" {
			errs = append(errs, "storage.bucket is required when storage is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be a valid http(s) URL")
	}
	return nil
}
