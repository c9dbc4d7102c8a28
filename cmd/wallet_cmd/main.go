package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/mimblenet/mwwallet/cmd"
	"github.com/mimblenet/mwwallet/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "MWWALLET_CONFIG"
)

func main() {
	logconfig.ConfigProductionLogger()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Wallet server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Wallet server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	// Make the configuration
	wsc := PrepareWalletServerConfig()
	if wsc == nil {
		fmt.Printf("Error loading wallet server configuration\n")
		return
	}

	fmt.Println("Starting wallet server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartWalletServerAndWait(wsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareWalletServerConfig reads configuration variables and returns a WalletServerConfig.
func PrepareWalletServerConfig() *cmd.WalletServerConfig {
	return &cmd.WalletServerConfig{
		// key side
		WalletSeed: viper.GetString("WALLET_SEED"),
		Account:    viper.GetString("WALLET_ACCOUNT"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:         viper.GetString("HTTP_IP"),
		HttpPort:       viper.GetString("HTTP_PORT"),
		ReceiveMessage: viper.GetString("RECEIVE_MESSAGE"),
	}
}
