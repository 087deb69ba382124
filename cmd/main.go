// Package cmd implements the CLI for crossdeploy
package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/crossdeploy/pkg/deploy"
	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "crossdeploy [profile] [destination] [option=value...]",
	Short: "Builds cross-compiled release binaries and ships them to target devices",
	Long: `This command parses the first deploy.star file it finds, builds the selected
profile's binary for its target triple and, if a destination is given, copies the
artifact to that host. Without a destination only the build runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		positional := make([]string, 0)
		options := make(map[string]string)

		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				positional = append(positional, part)
			}
		}

		logger := zerolog.New(NewConsoleWriter())
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx = pipeline.WithLogger(ctx, &logger)

		profiles, _, projectRoot, err := loadProfiles(ctx, options)
		if err != nil {
			return err
		}

		profileName, destArg, err := splitPositionals(positional, profiles)
		if err != nil {
			return err
		}

		var profile *pipeline.Profile
		if profileName == "" {
			profile, err = profiles.DefaultProfile()
			if err != nil {
				return err
			}
		} else {
			var ok bool
			profile, ok = profiles[profileName]
			if !ok {
				return eris.Errorf("Profile %s not found", profileName)
			}
		}

		if destArg == "" {
			destArg = profile.Deploy
		}

		opts := pipeline.RunOptions{}
		opts.DryRun, err = cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		opts.Force, err = cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		opts.DeployOnly, err = cmd.Flags().GetBool("deploy-only")
		if err != nil {
			return err
		}

		if destArg != "" {
			opts.Deployer, err = buildDeployer(cmd, destArg)
			if err != nil {
				return err
			}
		} else if opts.DeployOnly {
			return eris.New("--deploy-only requires a destination")
		}

		return pipeline.RunProfile(ctx, projectRoot, profile, opts)
	},
}

// splitPositionals maps up to two positional arguments onto (profile, destination).
// A single argument that doesn't name a declared profile is treated as a
// destination, so `crossdeploy pi@ledstrip:` works without naming a profile.
func splitPositionals(positional []string, profiles pipeline.ProfileList) (string, string, error) {
	switch len(positional) {
	case 0:
		return "", "", nil
	case 1:
		if _, ok := profiles[positional[0]]; ok {
			return positional[0], "", nil
		}
		return "", positional[0], nil
	case 2:
		return positional[0], positional[1], nil
	default:
		return "", "", eris.Errorf("expected at most a profile and a destination but got %d arguments", len(positional))
	}
}

func buildDeployer(cmd *cobra.Command, destArg string) (pipeline.Deployer, error) {
	dest, err := deploy.ParseDest(destArg)
	if err != nil {
		return nil, err
	}

	useSftp, err := cmd.Flags().GetBool("sftp")
	if err != nil {
		return nil, err
	}

	if useSftp {
		keyFile, err := cmd.Flags().GetString("identity")
		if err != nil {
			return nil, err
		}

		uploader := deploy.NewSftpUploader(dest, keyFile)
		uploader.Port, err = cmd.Flags().GetInt("port")
		if err != nil {
			return nil, err
		}

		return uploader, nil
	}

	scpOpts, err := cmd.Flags().GetStringArray("scp-opt")
	if err != nil {
		return nil, err
	}

	return deploy.NewScpCommand(dest, scpOpts), nil
}

func findConfig() (string, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", "", eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	configPath, err := pipeline.FindConfig(wd)
	if err != nil {
		return "", "", err
	}

	return configPath, filepath.Dir(configPath), nil
}

// loadProfiles locates the deploy.star file, parses it (or reuses the configure
// cache) and returns the profile list together with the project root.
func loadProfiles(ctx context.Context, options map[string]string) (pipeline.ProfileList, map[string]pipeline.ScriptOption, string, error) {
	configPath, projectRoot, err := findConfig()
	if err != nil {
		return nil, nil, "", err
	}

	cachePath := filepath.Join(projectRoot, pipeline.CacheFile)
	if len(options) == 0 && pipeline.CacheFresh(cachePath, configPath) {
		_, profiles, err := pipeline.ReadCache(cachePath)
		if err == nil {
			return profiles, nil, projectRoot, nil
		}
		// a stale or broken cache is not fatal, fall back to parsing
	}

	profiles, scriptOptions, err := pipeline.Parse(ctx, configPath, projectRoot, options, true)
	if err != nil {
		return nil, nil, "", eris.Wrap(err, "Failed to parse profiles")
	}

	return profiles, scriptOptions, projectRoot, nil
}

func init() {
	rootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	rootCmd.Flags().BoolP("force", "f", false, "force build; run the build commands even if the artifact is up to date")
	rootCmd.Flags().Bool("deploy-only", false, "skip the build commands and only transfer the artifact")
	rootCmd.Flags().Bool("sftp", false, "transfer over a native ssh connection instead of the scp binary")
	rootCmd.Flags().StringP("identity", "i", "", "private key file for --sftp (defaults to the ssh agent)")
	rootCmd.Flags().Int("port", 22, "ssh port for --sftp")
	rootCmd.Flags().StringArray("scp-opt", nil, "additional option passed to scp (can be repeated)")
}

func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	logger := zerolog.New(NewConsoleWriter())
	logger.Error().Err(err).Msg("crossdeploy failed")

	var exitErr *pipeline.ExitError
	if eris.As(err, &exitErr) {
		os.Exit(exitErr.Status)
	}
	os.Exit(1)
}
