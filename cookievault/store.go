package cookievault

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kdevan/gchat-bridge/xerrors"
)

// cookieRow is one row read from the Chromium Cookies table, before
// decryption.
type cookieRow struct {
	hostKey         string
	name            string
	path            string
	isSecure        bool
	isHTTPOnly      bool
	expiresUTC      int64
	value           string
	encryptedValue  []byte
	hasEncryptedVal bool
}

// snapshotCookiesFile copies path to a temp file so the browser's exclusive
// lock on the live file never blocks our read (§4.1). On Linux, an
// in-progress copy can still fail with a locking error if Chrome currently
// holds an exclusive OS-level lock; that surfaces as StoreLocked.
func snapshotCookiesFile(path string) (string, error) {
	src, err := os.Open(path) // #nosec G304 -- path is derived from well-known browser profile dirs
	if err != nil {
		if runtime.GOOS == "linux" && os.IsPermission(err) {
			return "", xerrors.Wrap(xerrors.StoreLocked, "cookievault", err)
		}
		return "", fmt.Errorf("cookievault: open cookie store %q: %w", path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "gchat-cookies-*.sqlite")
	if err != nil {
		return "", fmt.Errorf("cookievault: create snapshot temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		os.Remove(tmp.Name())
		if runtime.GOOS == "linux" {
			return "", xerrors.Wrap(xerrors.StoreLocked, "cookievault", err)
		}
		return "", fmt.Errorf("cookievault: snapshot cookie store: %w", err)
	}
	return tmp.Name(), nil
}

// readCookieRows opens the SQLite snapshot at snapshotPath and returns every
// row whose cookie name is in wantNames.
func readCookieRows(snapshotPath string, wantNames []string) ([]cookieRow, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", filepath.ToSlash(snapshotPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("cookievault: open sqlite snapshot: %w", err)
	}
	defer db.Close()

	placeholders := make([]interface{}, len(wantNames))
	query := "SELECT host_key, name, path, is_secure, is_httponly, expires_utc, value, encrypted_value FROM cookies WHERE name IN ("
	for i, n := range wantNames {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = n
	}
	query += ")"

	rows, err := db.Query(query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("cookievault: query cookies table: %w", err)
	}
	defer rows.Close()

	var out []cookieRow
	for rows.Next() {
		var r cookieRow
		var isSecure, isHTTPOnly int
		if err := rows.Scan(&r.hostKey, &r.name, &r.path, &isSecure, &isHTTPOnly, &r.expiresUTC, &r.value, &r.encryptedValue); err != nil {
			return nil, fmt.Errorf("cookievault: scan cookie row: %w", err)
		}
		r.isSecure = isSecure != 0
		r.isHTTPOnly = isHTTPOnly != 0
		r.hasEncryptedVal = len(r.encryptedValue) > 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// chromeEpochToUnix converts a Chrome "webkit" timestamp (microseconds
// since 1601-01-01) to a Unix timestamp in seconds. Zero means no expiry.
func chromeEpochToUnix(webkitMicros int64) int64 {
	if webkitMicros == 0 {
		return 0
	}
	const epochDeltaSeconds = 11644473600
	return webkitMicros/1_000_000 - epochDeltaSeconds
}
