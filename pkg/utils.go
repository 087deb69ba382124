package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"

	"github.com/halcyonlabs/crossdeploy/pkg/pipeline"
)

// GetProjectRoot walks up from the working directory until it finds a deploy.star
// file or a .git directory.
func GetProjectRoot() (string, error) {
	mypath, err := os.Getwd()
	if err != nil {
		return "", eris.Wrap(err, "Failed to determine the working directory")
	}

	for {
		for _, marker := range []string{pipeline.ConfigFile, ".git"} {
			_, err := os.Stat(filepath.Join(mypath, marker))
			if err == nil {
				return mypath, nil
			}

			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrap(err, "Error occurred while searching for project root")
			}
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			break
		}
		mypath = nextPath
	}

	return "", eris.New("Project root not found")
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
