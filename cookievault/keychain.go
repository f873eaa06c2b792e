package cookievault

import (
	"runtime"

	"github.com/keybase/go-keychain"

	"github.com/kdevan/gchat-bridge/xerrors"
)

// macKeychainService and macKeychainAccount identify the Keychain entry
// Chromium-family browsers store their Cookies-file encryption password
// under on macOS (§4.1 table).
const (
	macKeychainService = "Chrome Safe Storage"
	macKeychainAccount = "Chrome"
)

// macKeychainPassword reads the Chromium Safe Storage password from the
// macOS Keychain. Returns KeyUnavailable if the platform isn't darwin or the
// OS denies access (e.g. the user clicked "Deny" on the access prompt).
func macKeychainPassword() (string, error) {
	if runtime.GOOS != "darwin" {
		return "", xerrors.New(xerrors.KeyUnavailable, "cookievault", "macOS keychain is only available on darwin, running on %s", runtime.GOOS)
	}

	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(macKeychainService)
	query.SetAccount(macKeychainAccount)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := keychain.QueryItem(query)
	if err != nil {
		return "", xerrors.Wrap(xerrors.KeyUnavailable, "cookievault", err)
	}
	if len(results) == 0 {
		return "", xerrors.New(xerrors.KeyUnavailable, "cookievault", "no %q keychain entry for account %q", macKeychainService, macKeychainAccount)
	}
	if len(results[0].Data) == 0 {
		return "", xerrors.New(xerrors.KeyUnavailable, "cookievault", "keychain entry has no password data")
	}
	return string(results[0].Data), nil
}
