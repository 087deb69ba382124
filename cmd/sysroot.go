package cmd

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/halcyonlabs/crossdeploy/pkg"
)

// sysrootSpec is one entry in SYSROOTS.yml. Dest may be absolute (the usual case
// for toolchain sysroots, e.g. /usr/arm-linux-gnueabihf) or relative to the
// project root.
type sysrootSpec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

type sysrootConfig struct {
	Vars     map[string]string
	Sysroots map[string]sysrootSpec
}

var fetchSysrootsCmd = &cobra.Command{
	Use:   "fetch-sysroots",
	Short: "Downloads and unpacks cross-compilation sysroots",
	Long: `Downloads and unpacks the sysroot/toolchain archives listed in SYSROOTS.yml at
the project root. Archives are verified against their sha256 checksum and only
fetched again when the URL or checksum changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg.PrintTask("Loading config")
		root, err := pkg.GetProjectRoot()
		if err != nil {
			return err
		}

		cfg, stamps, err := getSysrootConfig(root)
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading sysroots")
		err = fetchSysroots(cmd, cfg, stamps, root)

		stampPath := filepath.Join(root, "SYSROOTS.stamps")
		stampData, jErr := json.Marshal(stamps)
		if jErr != nil {
			pkg.PrintError(jErr.Error())
		}

		jErr = os.WriteFile(stampPath, stampData, os.FileMode(0660))
		if jErr != nil {
			pkg.PrintError(jErr.Error())
		}

		pkg.PrintTask("Done")

		return err
	},
}

func init() {
	rootCmd.AddCommand(fetchSysrootsCmd)
	fetchSysrootsCmd.Flags().BoolP("skip-verify", "k", false, "accept archives without a checksum")
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		// progress bars just produce noise on CI logs
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func getSysrootConfig(projectRoot string) (sysrootConfig, map[string]string, error) {
	var cfg sysrootConfig
	cfgPath := filepath.Join(projectRoot, "SYSROOTS.yml")
	cfgData, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfg, nil, eris.Wrapf(err, "Could not open file %s.", cfgPath)
	}

	err = yaml.Unmarshal(cfgData, &cfg)
	if err != nil {
		return cfg, nil, eris.Wrapf(err, "Failed to parse %s.", cfgPath)
	}

	stamps := map[string]string{}
	stampPath := filepath.Join(projectRoot, "SYSROOTS.stamps")
	stampData, err := os.ReadFile(stampPath)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return cfg, nil, eris.Wrapf(err, "Failed to read stamps file %s.", stampPath)
		}
	} else {
		err = json.Unmarshal(stampData, &stamps)
		if err != nil {
			return cfg, nil, eris.Wrapf(err, "Failed to parse JSON file %s.", stampPath)
		}
	}

	return cfg, stamps, nil
}

func evalSysrootConditions(meta *sysrootSpec, vars map[string]string) bool {
	varMatcher := regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

	meta.URL = varMatcher.ReplaceAllStringFunc(meta.URL, func(varName string) string {
		value, ok := vars[varName[1:len(varName)-1]]
		if ok {
			return value
		}
		return ""
	})

	for _, condition := range strings.Split(meta.Condition, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if !ok || value == "" {
			return false
		}
	}

	for _, condition := range strings.Split(meta.Rejections, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if ok && value != "" {
			return false
		}
	}
	return true
}

func sysrootDest(projectRoot string, meta sysrootSpec) string {
	if filepath.IsAbs(meta.Dest) {
		return meta.Dest
	}

	return filepath.Join(projectRoot, meta.Dest)
}

func fetchSysroots(cmd *cobra.Command, cfg sysrootConfig, stamps map[string]string, projectRoot string) error {
	client := &http.Client{
		Timeout: time.Minute * 30,
	}

	skipVerify, err := cmd.Flags().GetBool("skip-verify")
	if err != nil {
		return err
	}

	vars := cfg.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	vars[runtime.GOARCH] = "true"
	vars[runtime.GOOS] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	for name, meta := range cfg.Sysroots {
		if !evalSysrootConditions(&meta, vars) {
			continue
		}

		destPath := sysrootDest(projectRoot, meta)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := meta.URL + "#" + meta.Sha256
		stamp, ok := stamps[name]
		if ok && stampToken == stamp && destExists {
			continue
		}

		pkg.PrintSubtask(name + ":  " + meta.URL)
		if meta.Sha256 == "" && !skipVerify {
			return eris.Errorf("Sysroot %s doesn't have a checksum", name)
		}

		err = fetchOne(client, name, meta, destPath, destExists, destInfo)
		if err != nil {
			return err
		}

		stamps[name] = stampToken
	}

	return nil
}

func fetchOne(client *http.Client, name string, meta sysrootSpec, destPath string, destExists bool, destInfo os.FileInfo) error {
	arHandle, err := os.CreateTemp("", "crossdeploy-dl-*")
	if err != nil {
		return eris.Wrap(err, "Failed to create download file")
	}
	defer func() {
		arHandle.Close()
		os.Remove(arHandle.Name())
	}()

	resp, err := client.Get(meta.URL)
	if err != nil {
		return eris.Wrapf(err, "Failed to start download for %s", meta.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("Download of %s failed with status %s", meta.URL, resp.Status)
	}

	hash := sha256.New()
	bar := getProgressBar(resp.ContentLength, "     download")
	_, err = io.Copy(io.MultiWriter(arHandle, hash, bar), resp.Body)
	bar.Finish()
	if err != nil {
		return eris.Wrapf(err, "Failed during download of %s", meta.URL)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if meta.Sha256 != "" && digest != meta.Sha256 {
		return eris.Errorf("Checksum check failed for %s (got %s)", name, digest)
	}

	if destExists {
		pkg.PrintSubtask("Remove " + destPath)
		if destInfo.IsDir() {
			err = os.RemoveAll(destPath)
		} else {
			err = os.Remove(destPath)
		}
		if err != nil {
			return err
		}
	}

	extractor, err := getExtractor(meta.URL)
	if err != nil {
		return err
	}

	_, err = arHandle.Seek(0, io.SeekStart)
	if err != nil {
		return eris.Wrap(err, "Failed to rewind download file")
	}

	bar = getProgressBar(resp.ContentLength, "      extract")
	err = extractor(arHandle, bar, destPath, meta)
	if err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		// .zip files don't carry permissions which means we have to manually fix
		// permissions for binaries in .zip files
		for _, binPath := range meta.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0700)
			if err != nil {
				return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
			}
		}
	}

	return nil
}

type archiveExtractor func(*os.File, *progressbar.ProgressBar, string, sysrootSpec) error

func openExtractorDest(destPath string, item string, spec sysrootSpec) (*os.File, string, error) {
	// normalize the path and strip spec.Strip elements from the beginning
	pathParts := strings.Split(filepath.Clean(item), string(filepath.Separator))
	if len(pathParts) <= spec.Strip {
		return nil, "/", nil
	}
	dest := filepath.Join(destPath, strings.Join(pathParts[spec.Strip:], string(filepath.Separator)))

	if dest == destPath {
		return nil, "/", nil
	}

	// entries with .. components must never escape the destination
	if !strings.HasPrefix(dest, destPath+string(filepath.Separator)) {
		return nil, "", eris.Errorf("Archive entry %s escapes the destination directory", item)
	}

	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, os.FileMode(0770))
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func getExtractor(url string) (archiveExtractor, error) {
	if strings.HasSuffix(url, ".zip") {
		return extractZip, nil
	}

	if strings.HasSuffix(url, ".tar.gz") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sysrootSpec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destPath, spec)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.bz2") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sysrootSpec) error {
			return extractTar(bzip2.NewReader(f), f, bar, destPath, spec)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.xz") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sysrootSpec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, f, bar, destPath, spec)
		}, nil
	}

	return nil, eris.New("Archive format not supported")
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sysrootSpec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, spec)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			destHandle.Close()
			return eris.Wrap(err, "Failed to open archive entry")
		}

		_, err = io.Copy(destHandle, itemHandle)
		itemHandle.Close()
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, spec sysrootSpec) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, spec)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			destHandle.Close()
			err := os.Remove(dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to remove placeholder file %s", dest)
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		_, err = io.Copy(destHandle, archive)
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		os.Chmod(dest, fi.Mode())

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}

	return nil
}
