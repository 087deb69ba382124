package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halcyonlabs/crossdeploy/pkg"
	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Checks that the cross-compilation preconditions are met",
	Long: `Verifies, without changing anything, that the tools and sysroots the declared
profiles depend on are actually installed: cargo, pkg-config and scp on PATH, the
rustup targets and the sysroot directories the profiles point at.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := zerolog.New(NewConsoleWriter())
		ctx := pipeline.WithLogger(context.Background(), &logger)

		profiles, _, _, err := loadProfiles(ctx, map[string]string{})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load profiles")
		}

		problems := 0

		pkg.PrintTask("Checking tools")
		for _, tool := range []string{"cargo", "pkg-config", "scp"} {
			path, err := exec.LookPath(tool)
			if err != nil {
				pkg.PrintError(tool + " not found on PATH")
				problems++
			} else {
				pkg.PrintSubtask(tool + ": " + path)
			}
		}

		installedTargets := rustupTargets()

		pkg.PrintTask("Checking profiles")
		for _, profile := range profiles {
			if profile.Hidden {
				continue
			}

			pkg.PrintSubtask(profile.Name + " (" + profile.Target + ")")

			if installedTargets != nil && !installedTargets[profile.Target] {
				pkg.PrintError(fmt.Sprintf("rustup target %s is not installed (rustup target add %s)", profile.Target, profile.Target))
				problems++
			}

			sysroot, ok := profile.Env["PKG_CONFIG_SYSROOT_DIR"]
			if !ok {
				continue
			}

			info, err := os.Stat(sysroot)
			if err != nil || !info.IsDir() {
				pkg.PrintError(fmt.Sprintf("sysroot %s does not exist (try crossdeploy fetch-sysroots)", sysroot))
				problems++
			}
		}

		if problems > 0 {
			return eris.Errorf("%d problems found", problems)
		}

		pkg.PrintTask("Everything looks fine")
		return nil
	},
}

// rustupTargets returns the installed rustup targets or nil if rustup isn't
// usable. A missing rustup is not an error, cargo might come from elsewhere.
func rustupTargets() map[string]bool {
	output, err := exec.Command("rustup", "target", "list", "--installed").Output()
	if err != nil {
		return nil
	}

	targets := map[string]bool{}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			targets[line] = true
		}
	}

	return targets
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
