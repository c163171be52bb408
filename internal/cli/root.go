package cli

import (
	"github.com/spf13/cobra"

	"github.com/lazypower/paramem/internal/config"
	"github.com/lazypower/paramem/internal/logger"
)

var (
	configPath string
	jsonLogs   bool
	verbose    bool

	// cfg is loaded once by the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "paramem",
	Short: "Tiered fact memory over a PARA knowledge tree",
	Long: "paramem keeps atomic facts per entity in a PARA tree, regenerates tiered\n" +
		"summaries as facts cool, and distills conversations into new facts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs, verbose); err != nil {
			return err
		}
		// hooks and config init must work without a valid config
		if cmd.Annotations[annotationNoConfig] != "" {
			return nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

const annotationNoConfig = "no-config"

var skipConfig = map[string]string{annotationNoConfig: "true"}

func Execute() error {
	defer logger.Cleanup()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $PARA_WORKSPACE/paramem.toml or ~/.paramem/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(factCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(hookCmd)
}
