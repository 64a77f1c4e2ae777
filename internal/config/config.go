package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// LoadConfig loads the configuration and sets default values for development/production
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".") // Path to look for the config file in

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create a default one
			return createDefaultConfig()
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	// Ensure we have sensible defaults in case they are not in the config file
	setDefaults()

	return nil
}

// setDefaults sets default configuration values based on the environment
func setDefaults() {
	// Check the current environment (default is development)
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	// Set defaults for development and production environments
	if env == "development" {
		viper.SetDefault("allowed_origin", "http://localhost:3000")
		viper.SetDefault("wallet_db_path", "./dev_messaging.db")
		viper.SetDefault("log_level", "debug")
		viper.SetDefault("log_file", "./memowire.log")
	} else if env == "production" {
		viper.SetDefault("allowed_origin", "https://my-production-site.com")
		viper.SetDefault("wallet_db_path", "/var/lib/memowire/messaging.db")
		viper.SetDefault("log_level", "info")
		viper.SetDefault("log_file", "/var/log/memowire/memowire.log")
	}

	// Common defaults for both environments
	viper.SetDefault("rpc_url", "http://127.0.0.1:8232")
	viper.SetDefault("rpc_user", "rpcuser")
	viper.SetDefault("rpc_password", "rpcpassword")
	viper.SetDefault("poll_interval", "5s")
	viper.SetDefault("result_poll_interval", "3s")
	viper.SetDefault("max_result_polls", 100)
	viper.SetDefault("min_conf", 1)
	viper.SetDefault("dust_amount", 0.0001)  // in coins
	viper.SetDefault("default_fee", 0.0001)  // in coins
	viper.SetDefault("max_notes_per_tx", 54) // daemon output limit per shielded tx
	viper.SetDefault("api_port", 9003)
	viper.SetDefault("use_https", false)
	viper.SetDefault("cert_file", "server.crt")
	viper.SetDefault("key_file", "server.key")
	viper.SetDefault("jwt_keys_dir", "./jwtkeys")
	viper.SetDefault("wallet_api_key", "")
	viper.SetDefault("wallet_dir", "./wallets")
	viper.SetDefault("notify_socket", "/tmp/memowire.sock")
	viper.SetDefault("server_mode", true)
}

// createDefaultConfig creates a new configuration file if it doesn't exist
func createDefaultConfig() error {
	setDefaults()

	// Write the default configuration to a file
	err := viper.SafeWriteConfig()
	if err != nil {
		if os.IsExist(err) {
			// If the config already exists, attempt to overwrite it
			err = viper.WriteConfig()
			if err != nil {
				return fmt.Errorf("error writing config file: %w", err)
			}
		} else {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}

	fmt.Println("Created default configuration file")
	return nil
}
