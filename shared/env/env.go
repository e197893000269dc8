package env

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// ConfigPath is the YAML file config.LoadConfig reads. Every other variable is
// bound by viper; LoadEnv only audits that the important ones are present.
var ConfigPath string

var hiddenKeys = map[string]bool{
	"MONITOR_SECRET":     true,
	"TELEGRAM_BOT_TOKEN": true,
	"ALCHEMY_API_KEY":    true,
	"MORALIS_API_KEY":    true,
	"ETHERSCAN_API_KEY":  true,
	"HELIUS_API_KEY":     true,
	"HELIUS_RPC_URL":     true,
}

func loadEnvVariable(key string, isRequired bool) string {
	value := os.Getenv(key)
	if isRequired && value == "" {
		log.Fatalf("FATAL: Environment variable %s is required but not set.", key)
	}
	if value == "" {
		if !isRequired {
			log.Printf("INFO: Environment variable %s is not set.", key)
		}
	} else if hiddenKeys[key] {
		log.Printf("INFO: Loaded %s (value hidden)", key)
	} else {
		log.Printf("INFO: Loaded %s = %s", key, value)
	}
	return value
}

// LoadEnv reads .env (when present) into the process environment before
// config is loaded.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: .env file not found or error loading, relying on system environment variables.")
	} else {
		log.Println("INFO: .env file loaded successfully.")
	}

	ConfigPath = loadEnvVariable("CONFIG_PATH", false)
	if ConfigPath == "" {
		ConfigPath = "agent/config.yaml"
	}

	if loadEnvVariable("MONITOR_SECRET", false) == "" {
		log.Println("WARN: MONITOR_SECRET is not set. POST /monitor/run will refuse every request.")
	}
	alchemy := loadEnvVariable("ALCHEMY_API_KEY", false)
	moralis := loadEnvVariable("MORALIS_API_KEY", false)
	etherscan := loadEnvVariable("ETHERSCAN_API_KEY", false)
	if alchemy == "" && moralis == "" && etherscan == "" {
		log.Println("WARN: No EVM provider API key set. EVM watch entries will report AllProvidersFailed.")
	}
	helius := loadEnvVariable("HELIUS_API_KEY", false)
	heliusRPC := loadEnvVariable("HELIUS_RPC_URL", false)
	if helius == "" && heliusRPC == "" {
		log.Println("WARN: Neither HELIUS_API_KEY nor HELIUS_RPC_URL set. Solana entries fall back to the public RPC endpoint.")
	}
	if loadEnvVariable("TELEGRAM_BOT_TOKEN", false) == "" {
		log.Println("WARN: TELEGRAM_BOT_TOKEN not set. Telegram delivery and bot commands are disabled.")
	}

	log.Println("INFO: Environment variables loading process complete.")
	return nil
}
