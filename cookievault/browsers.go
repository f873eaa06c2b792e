package cookievault

import (
	"os"
	"path/filepath"
	"runtime"
)

// BrowserInfo describes one discovered browser installation (§4.1
// listBrowsers).
type BrowserInfo struct {
	Name       string
	ProfileDir string
}

// supportedBrowsers is the catalogue of well-known browsers (§6): Chrome,
// Brave, Edge, Chromium, Arc. Paths are resolved relative to $HOME at
// lookup time rather than baked in, since they differ per platform.
var supportedBrowsers = []string{"chrome", "brave", "edge", "chromium", "arc"}

// profileDirForBrowser returns the root directory under which browser keeps
// its per-profile subdirectories (each containing a Cookies file), or an
// error if the platform/browser combination is unsupported.
func profileDirForBrowser(browser string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		switch browser {
		case "chrome":
			return filepath.Join(home, "Library", "Application Support", "Google", "Chrome"), nil
		case "brave":
			return filepath.Join(home, "Library", "Application Support", "BraveSoftware", "Brave-Browser"), nil
		case "edge":
			return filepath.Join(home, "Library", "Application Support", "Microsoft Edge"), nil
		case "chromium":
			return filepath.Join(home, "Library", "Application Support", "Chromium"), nil
		case "arc":
			return filepath.Join(home, "Library", "Application Support", "Arc", "User Data"), nil
		}
	case "linux":
		switch browser {
		case "chrome":
			return filepath.Join(home, ".config", "google-chrome"), nil
		case "brave":
			return filepath.Join(home, ".config", "BraveSoftware", "Brave-Browser"), nil
		case "edge":
			return filepath.Join(home, ".config", "microsoft-edge"), nil
		case "chromium":
			return filepath.Join(home, ".config", "chromium"), nil
		}
	}
	return "", errUnsupportedBrowser(browser, runtime.GOOS)
}

// snapChromiumPath is an alternate Linux install location (snap package);
// cookiesPathFor tries it when the primary ~/.config path doesn't exist.
func snapChromiumPath(home, profile string) string {
	return filepath.Join(home, "snap", "chromium", "common", "chromium", profile, "Cookies")
}

// cookiesPathFor returns the Cookies file path for browser/profile, trying
// the snap-packaged Linux Chromium location as a fallback (§6).
func cookiesPathFor(browser, profile string) (string, error) {
	root, err := profileDirForBrowser(browser)
	if err != nil {
		return "", err
	}
	primary := filepath.Join(root, profile, "Cookies")
	if _, err := os.Stat(primary); err == nil {
		return primary, nil
	}
	if runtime.GOOS == "linux" && browser == "chromium" {
		home, herr := os.UserHomeDir()
		if herr == nil {
			if alt := snapChromiumPath(home, profile); fileExists(alt) {
				return alt, nil
			}
		}
	}
	return primary, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListProfiles enumerates the profile subdirectories for browser by looking
// for entries that themselves contain a Cookies file.
func ListProfiles(browser string) ([]string, error) {
	root, err := profileDirForBrowser(browser)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var profiles []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fileExists(filepath.Join(root, e.Name(), "Cookies")) {
			profiles = append(profiles, e.Name())
		}
	}
	return profiles, nil
}

// ListBrowsers probes the well-known installation paths (§6) and returns
// every browser that appears to be installed on this machine.
func ListBrowsers() []BrowserInfo {
	var found []BrowserInfo
	for _, b := range supportedBrowsers {
		root, err := profileDirForBrowser(b)
		if err != nil || !fileExists(root) {
			continue
		}
		found = append(found, BrowserInfo{Name: b, ProfileDir: root})
	}
	return found
}
