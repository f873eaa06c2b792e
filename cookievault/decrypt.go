package cookievault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kdevan/gchat-bridge/xerrors"

	"crypto/sha1" //nolint:gosec // PBKDF2-HMAC-SHA1 is the Chromium cookie KDF, not our choice
)

// saltySalt is the fixed PBKDF2 salt Chromium-family browsers use to derive
// the Cookies-file encryption key, on every supported platform (§4.1).
const saltySalt = "saltysalt"

// cookieIV is the fixed IV Chromium-family browsers use for the AES-128-CBC
// cookie cipher: sixteen 0x20 (space) bytes.
var cookieIV = bytes.Repeat([]byte{0x20}, 16)

// deriveKey runs PBKDF2-HMAC-SHA1 with the given password and iteration
// count to produce the 16-byte AES key (§4.1 table).
func deriveKey(password string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(saltySalt), iterations, 16, sha1.New) //nolint:gosec
}

// decryptValue decrypts one Chromium cookie's encrypted_value blob. v10/v11
// are the only version prefixes the upstream browsers emit; anything else
// (or a value with no recognizable prefix) is returned unchanged under the
// assumption it is already plaintext.
func decryptValue(raw []byte, key []byte) (string, error) {
	if len(raw) < 3 {
		return string(raw), nil
	}
	prefix := string(raw[:3])
	if prefix != "v10" && prefix != "v11" {
		return string(raw), nil
	}
	ciphertext := raw[3:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", xerrors.New(xerrors.KeyUnavailable, "cookievault", "ciphertext length %d is not a multiple of the AES block size", len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cookievault: build AES cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, cookieIV)
	plain := make([]byte, len(ciphertext))
	mode.CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain)
	if err != nil {
		return "", fmt.Errorf("cookievault: unpad decrypted cookie: %w", err)
	}
	return string(unpadded), nil
}

// pkcs7Unpad strips PKCS#7 padding, validating that the padding bytes are
// well-formed so corrupted ciphertext is rejected rather than silently
// truncated incorrectly.
func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > n {
		return nil, fmt.Errorf("invalid PKCS#7 padding length %d", padLen)
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid PKCS#7 padding bytes")
		}
	}
	return data[:n-padLen], nil
}
