package cmd

import (
	"fmt"
	"os"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `	     _             _                _ _
	 ___| |_ ___   ___| | _____ _   _(_) |_ ___
	/ __| __/ _ \ / __| |/ / __| | | | | __/ _ \
	\__ \ || (_) | (__|   <\__ \ |_| | | ||  __/
	|___/\__\___/ \___|_|\_\___/\__,_|_|\__\___|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stocksuite",
	Short: "Keeps a monday.com product catalog's stock in step with entry and exit boards.",
	Long: LOGO + `stocksuite processes entry and exit batches on monday.com boards: it checks the QC gate,
moves catalog stock, mirrors every row to a report board and clears the processed rows.

Run it once from the command line or keep it serving monday webhooks with "stocksuite serve".`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stocksuite.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().Bool("logjson", false, "Log JSON lines instead of text")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to the run history SQLite file (default is ~/.config/stocksuite/stocksuite.sqlite)")

	viper.BindPFlag("storage.dbpath", rootCmd.PersistentFlags().Lookup("dbpath"))
}

// initConfig reads in the .env file, the config file and ENV variables if set.
func initConfig() {
	// A missing .env file is fine; real environment variables win over it.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".stocksuite")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.stocksuite.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
	logJSON, _ := rootCmd.PersistentFlags().GetBool("logjson")
	utils.SetLogJSON(logJSON)
}

// loadConfig decodes and validates the settings gathered by initConfig.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
