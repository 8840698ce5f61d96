package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aminofox/zenclient/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	backendHostKey   = "backend.host"
	backendPortKey   = "backend.port"
	backendSecureKey = "backend.secure"
	logLevelKey      = "logging.level"
	logFormatKey     = "logging.format"
	saltKey          = "auth.salt"
	pepperKey        = "auth.pepper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "zenclient",
	Short:         "Command line client for the ZenLive streaming platform",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("host", "", "backend host, optionally with scheme")
	rootCmd.PersistentFlags().Int("port", 0, "backend port")
	rootCmd.PersistentFlags().Bool("secure", false, "use https and wss")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "json or text")

	_ = viper.BindPFlag(backendHostKey, rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag(backendPortKey, rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag(backendSecureKey, rootCmd.PersistentFlags().Lookup("secure"))
	_ = viper.BindPFlag(logLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag(logFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("ZENCLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(watchCmd, versionCmd)
}

// loadConfig reads the YAML file when given, then applies environment and
// flag overrides. Empty overrides keep the file value.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		c, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.DefaultConfig()
		cfg.LoadFromEnv()
	}

	if v := viper.GetString(backendHostKey); v != "" {
		cfg.Backend.Host = v
	}
	if v := viper.GetInt(backendPortKey); v != 0 {
		cfg.Backend.Port = v
	}
	if viper.GetBool(backendSecureKey) {
		cfg.Backend.Secure = true
	}
	if v := viper.GetString(logLevelKey); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString(logFormatKey); v != "" {
		cfg.Logging.Format = v
	}
	if v := viper.GetString(saltKey); v != "" {
		cfg.Auth.Salt = v
	}
	if v := viper.GetString(pepperKey); v != "" {
		cfg.Auth.Pepper = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printErr(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
