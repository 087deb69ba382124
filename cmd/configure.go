package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

var configureCmd = &cobra.Command{
	Use:   "configure [option=value...]",
	Short: "Parses deploy.star and caches the result",
	Long: `Runs the configure step of deploy.star with the given options and stores the
resulting profiles in a cache file. Subsequent runs reuse the cache until
deploy.star changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		options := make(map[string]string)
		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx := pipeline.WithLogger(context.Background(), &logger)

		configPath, projectRoot, err := findConfig()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to locate deploy.star")
		}

		profiles, _, err := pipeline.Parse(ctx, configPath, projectRoot, options, true)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse profiles")
		}

		cachePath := filepath.Join(projectRoot, pipeline.CacheFile)
		err = pipeline.WriteCache(cachePath, options, profiles)
		if err != nil {
			logger.Fatal().Err(err).Msgf("Failed to write %s", cachePath)
		}

		logger.Info().Msgf("cached %d profiles in %s", len(profiles), cachePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
