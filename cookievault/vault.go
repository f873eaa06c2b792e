package cookievault

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// linuxHardcodedPassword is the fixed password Linux Chromium-family
// browsers use as the PBKDF2 input instead of a keychain secret (§4.1).
const linuxHardcodedPassword = "peanuts"

const (
	macPBKDF2Iterations   = 1003
	linuxPBKDF2Iterations = 1
)

// Vault reads and decrypts cookies from a browser's on-disk store.
type Vault struct {
	log *logger.Logger
}

// New creates a Vault. log may be nil.
func New(log *logger.Logger) *Vault {
	return &Vault{log: log}
}

// Extract reads every row matching requiredNames from browser/profile's
// Cookies file, decrypts it, and returns the newest-by-domain-preference
// match for each name (§4.1 extract).
func (v *Vault) Extract(browser, profile string, requiredNames []string) (map[string]Cookie, error) {
	path, err := cookiesPathFor(browser, profile)
	if err != nil {
		return nil, err
	}
	if !fileExists(path) {
		return nil, fmt.Errorf("cookievault: no cookie store at %q", path)
	}

	snapshot, err := snapshotCookiesFile(path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(snapshot)

	rows, err := readCookieRows(snapshot, requiredNames)
	if err != nil {
		return nil, err
	}

	key, keyErr := v.decryptionKey(browser)

	byName := make(map[string][]cookieRow, len(requiredNames))
	for _, r := range rows {
		byName[r.name] = append(byName[r.name], r)
	}

	out := make(map[string]Cookie, len(requiredNames))
	for _, name := range requiredNames {
		candidates := byName[name]
		if len(candidates) == 0 {
			return nil, xerrors.MissingCookie(name)
		}
		chosen := selectByDomain(name, candidates)

		value := chosen.value
		if chosen.hasEncryptedVal {
			if keyErr != nil {
				return nil, keyErr
			}
			value, err = decryptValue(chosen.encryptedValue, key)
			if err != nil {
				v.log.Errorf("cookievault: decrypt cookie %q: %v", name, err)
				return nil, err
			}
		}

		out[name] = Cookie{
			Name:      name,
			Value:     sanitizeValue(value),
			Domain:    chosen.hostKey,
			Path:      chosen.path,
			Secure:    chosen.isSecure,
			HttpOnly:  chosen.isHTTPOnly,
			ExpiresAt: expiresAtFromRow(chosen.expiresUTC),
		}
	}
	return out, nil
}

// selectByDomain implements the §4.1 domain-selection rule: prefer the row
// whose host_key is ".google.com", except for OSID where "chat.google.com"
// wins. Falls back to the first row if no preferred domain is present.
func selectByDomain(name string, candidates []cookieRow) cookieRow {
	preferred := ".google.com"
	if name == "OSID" {
		preferred = "chat.google.com"
	}
	for _, c := range candidates {
		if c.hostKey == preferred {
			return c
		}
	}
	return candidates[0]
}

func expiresAtFromRow(webkitMicros int64) time.Time {
	unix := chromeEpochToUnix(webkitMicros)
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// decryptionKey derives the AES key for browser per the §4.1 table: macOS
// sources the password from the Keychain, Linux uses the hard-coded
// password, each with its own PBKDF2 iteration count.
func (v *Vault) decryptionKey(browser string) ([]byte, error) {
	switch runtime.GOOS {
	case "darwin":
		password, err := macKeychainPassword()
		if err != nil {
			return nil, err
		}
		return deriveKey(password, macPBKDF2Iterations), nil
	case "linux":
		return deriveKey(linuxHardcodedPassword, linuxPBKDF2Iterations), nil
	default:
		return nil, xerrors.New(xerrors.KeyUnavailable, "cookievault", "unsupported platform %s for browser %q", runtime.GOOS, browser)
	}
}

func errUnsupportedBrowser(browser, goos string) error {
	return fmt.Errorf("cookievault: browser %q is not supported on %s", browser, goos)
}
