package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [option=value...]",
	Short: "Lists the profiles and options declared in deploy.star",
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

		// always parse here, the cache doesn't carry option descriptions
		configPath, projectRoot, err := findConfig()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to locate deploy.star")
		}

		profiles, scriptOptions, err := pipeline.Parse(ctx, configPath, projectRoot, options, true)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to parse profiles")
		}

		fmt.Println("Available profiles:")
		maxNameLen := 0
		sortedNames := make([]string, 0)
		for _, profile := range profiles {
			nameLen := len(profile.Name)
			if nameLen > maxNameLen {
				maxNameLen = nameLen
			}

			sortedNames = append(sortedNames, profile.Name)
		}

		sort.Strings(sortedNames)

		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, name := range sortedNames {
			profile := profiles[name]
			desc := profile.Desc
			if desc == "" {
				desc = profile.Target
			}
			if profile.Default {
				desc += " (default)"
			}
			fmt.Printf(lineFmt, name+":", desc)
		}

		if len(scriptOptions) > 0 {
			fmt.Println("\nOptions:")
			optionNames := make([]string, 0, len(scriptOptions))
			for name := range scriptOptions {
				optionNames = append(optionNames, name)
			}
			sort.Strings(optionNames)

			for _, name := range optionNames {
				opt := scriptOptions[name]
				fmt.Printf(" * %s=%s  %s\n", name, opt.Default(), opt.Help)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}
