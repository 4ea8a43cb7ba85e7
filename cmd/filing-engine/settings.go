package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Settings resolve a flag against the config file and FILING_ENGINE_*
// environment: an explicitly set flag wins, then the viper key, then the
// flag's default.

func stringSetting(cmd *cobra.Command, flag, key string) string {
	v, _ := cmd.Flags().GetString(flag)
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetString(key)
	}
	return v
}

func intSetting(cmd *cobra.Command, flag, key string) int {
	v, _ := cmd.Flags().GetInt(flag)
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return v
}

func boolSetting(cmd *cobra.Command, flag, key string) bool {
	v, _ := cmd.Flags().GetBool(flag)
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return v
}

func durationSetting(cmd *cobra.Command, flag, key string) time.Duration {
	v, _ := cmd.Flags().GetDuration(flag)
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return v
}
