package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "retile",
	Short: "Resample tiled raster datasets into new grids and pyramids",
	Long: `retile reads a tiled raster dataset (for example SRTM elevation tiles)
from local files or HTTP and writes it out on a different tile grid, with an
optional pyramid of coarser levels built by area averaging.

Examples:
  # Retile 1201px SRTM tiles into 256px zstd tiles with two coarser levels
  retile run --source-template 'https://example.com/{x:3}_{y:3}.hgt?z={z}' --source-preset srtm \
    --output-template 'out/{z}/{x}/{y}.zst' --output-compression zstd --output-size 256,256 \
    --region 0,0,2402,1201 --begin-level 2

  # Print the job plan without touching any tile
  retile jobs --config retile.yaml

  # Serve colorized previews of configured datasets
  retile serve --port 3000`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.retile.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-encoding", "console", "log encoding (console|json)")
	rootCmd.PersistentFlags().String("user-agent", "", "HTTP User-Agent header")
	rootCmd.PersistentFlags().Duration("http-timeout", 0, "timeout of a single tile request")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.encoding", rootCmd.PersistentFlags().Lookup("log-encoding"))
	viper.BindPFlag("http.user_agent", rootCmd.PersistentFlags().Lookup("user-agent"))
	viper.BindPFlag("http.timeout", rootCmd.PersistentFlags().Lookup("http-timeout"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".retile" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".retile")
	}

	// RETILE_SOURCE_TEMPLATE sets source.template
	viper.SetEnvPrefix("RETILE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		cobra.CheckErr(fmt.Errorf("read config %s: %w", cfgFile, err))
	}
}
