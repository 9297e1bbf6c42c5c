package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const envPrefix = "LASTRO_"

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config é a configuração do servidor. Os valores vêm das variáveis de
// ambiente LASTRO_*; um arquivo TOML, se informado, sobrepõe as chaves que define.
type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	DBDriver     string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:lastro.db?_time_format=sqlite"`
	MetadataDir  string `env:"METADATA_DIR" envDefault:"data/metadata"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty    bool   `env:"LOG_PRETTY" envDefault:"true"`
	AmountPlaces int32  `env:"AMOUNT_PLACES" envDefault:"6"`

	Ledger Ledger `envPrefix:"SOLANA_"`

	ListenerInterval time.Duration `env:"LISTENER_INTERVAL" envDefault:"30s"`
}

// Ledger configura o acesso à Solana.
type Ledger struct {
	RPCURL      string            `env:"RPC_URL" envDefault:"https://api.devnet.solana.com"`
	FeePayerKey string            `env:"FEE_PAYER_PRIVATE_KEY"`
	CallTimeout time.Duration     `env:"CALL_TIMEOUT" envDefault:"30s"`
	Keyring     map[string]string `env:"KEYRING"` // Identidade -> chave base58 das contas custodiadas
}

type fileConfig struct {
	HTTPAddr         string            `toml:"http_addr"`
	DBDriver         string            `toml:"db_driver"`
	DatabaseURL      string            `toml:"database_url"`
	MetadataDir      string            `toml:"metadata_dir"`
	LogLevel         string            `toml:"log_level"`
	LogPretty        bool              `toml:"log_pretty"`
	AmountPlaces     int32             `toml:"amount_places"`
	ListenerInterval string            `toml:"listener_interval"`
	Solana           fileLedger        `toml:"solana"`
	Keyring          map[string]string `toml:"keyring"`
}

type fileLedger struct {
	RPCURL      string `toml:"rpc_url"`
	FeePayerKey string `toml:"fee_payer_private_key"`
	CallTimeout string `toml:"call_timeout"`
}

// Load lê o ambiente e, se path não for vazio, o arquivo TOML.
func Load(path string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("falha ao ler variáveis de ambiente: %w", err)
	}
	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("falha ao ler arquivo de configuração: %w", err)
	}

	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("db_driver") {
		cfg.DBDriver = strings.TrimSpace(raw.DBDriver)
	}
	if meta.IsDefined("database_url") {
		cfg.DatabaseURL = strings.TrimSpace(raw.DatabaseURL)
	}
	if meta.IsDefined("metadata_dir") {
		cfg.MetadataDir = strings.TrimSpace(raw.MetadataDir)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_pretty") {
		cfg.LogPretty = raw.LogPretty
	}
	if meta.IsDefined("amount_places") {
		cfg.AmountPlaces = raw.AmountPlaces
	}
	if meta.IsDefined("listener_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ListenerInterval))
		if err != nil {
			return fmt.Errorf("listener_interval inválido: %w", err)
		}
		cfg.ListenerInterval = d
	}
	if meta.IsDefined("solana", "rpc_url") {
		cfg.Ledger.RPCURL = strings.TrimSpace(raw.Solana.RPCURL)
	}
	if meta.IsDefined("solana", "fee_payer_private_key") {
		cfg.Ledger.FeePayerKey = strings.TrimSpace(raw.Solana.FeePayerKey)
	}
	if meta.IsDefined("solana", "call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Solana.CallTimeout))
		if err != nil {
			return fmt.Errorf("solana.call_timeout inválido: %w", err)
		}
		cfg.Ledger.CallTimeout = d
	}
	if meta.IsDefined("keyring") {
		if cfg.Ledger.Keyring == nil {
			cfg.Ledger.Keyring = make(map[string]string, len(raw.Keyring))
		}
		for identity, key := range raw.Keyring {
			cfg.Ledger.Keyring[identity] = key
		}
	}
	return nil
}

// Validate verifica os campos obrigatórios e os limites.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("driver de banco desconhecido: %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL é obrigatório")
	}
	if c.Ledger.FeePayerKey == "" {
		return fmt.Errorf("%sSOLANA_FEE_PAYER_PRIVATE_KEY é obrigatório", envPrefix)
	}
	if c.AmountPlaces < 0 || c.AmountPlaces > 9 {
		return fmt.Errorf("amount_places deve estar entre 0 e 9, recebido %d", c.AmountPlaces)
	}
	if c.Ledger.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout deve ser positivo")
	}
	if c.ListenerInterval <= 0 {
		return fmt.Errorf("listener_interval deve ser positivo")
	}
	return nil
}
