package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mandali-ai/mandali/internal/config"
)

// Version is stamped by the release build.
var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "mandali",
	Short: "Autonomous AI team supervisor",
	Long: `Mandali runs a team of autonomous AI workers against a shared workspace.
The workers deliberate in a conversation file, record satisfaction votes,
and keep working until the whole team agrees the plan is complete and the
result survives verification.`,
	Version: Version,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/mandali/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/mandali")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MANDALI")
	// Replace dots with underscores for nested keys in env vars
	// e.g., MANDALI_STALL_TIMEOUT_MINUTES for stall.timeout_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
