package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/kdevan/gchat-bridge/xerrors"
)

// bootstrapURL and its fixed query parameters (§4.2, §6). The "hs" value is
// an opaque literal copied from captured browser traffic; per §9's Open
// Questions it is treated as a build-time constant and never synthesized.
const (
	bootstrapURL       = "https://chat.google.com/u/0/mole/world"
	bootstrapOrigin    = "https://mail.google.com"
	bootstrapShell     = "9"
	bootstrapLocale    = "en"
	bootstrapHsLiteral = "1"
)

var errBootstrapMarkerNotFound = xerrors.New(xerrors.BootstrapUnavailable, "auth", "WIZ_global_data literal not found in bootstrap page")

// wizFieldSMqcke and wizFieldSignInMarker are the two fields of the decoded
// WIZ_global_data object the Auth Manager inspects (§4.2): SMqcke carries
// the xsrf token, qwAQke flags an unauthenticated session.
const (
	wizFieldSMqcke      = "SMqcke"
	wizFieldSignInCheck = "qwAQke"
	wizValueSignInUI    = "AccountsSignInUi"
)

// buildBootstrapRequest constructs the GET request for the bootstrap page,
// attaching cookies manually (rather than via a cookie jar) since the
// Manager holds cookies as a plain map (§3 AuthState).
func buildBootstrapRequest(ctx context.Context, cookies map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bootstrapURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build bootstrap request: %w", err)
	}
	q := req.URL.Query()
	q.Set("origin", bootstrapOrigin)
	q.Set("shell", bootstrapShell)
	q.Set("hl", bootstrapLocale)
	q.Set("hs", bootstrapHsLiteral)
	req.URL.RawQuery = q.Encode()

	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req, nil
}

// fetchBootstrapPage issues the GET and follows at most one redirect
// manually (§4.2), since http.Client's default redirect policy would hide
// the intermediate response we need to inspect.
func fetchBootstrapPage(ctx context.Context, client *http.Client, cookies map[string]string) (string, error) {
	req, err := buildBootstrapRequest(ctx, cookies)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: fetch bootstrap page: %w", err)
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); isRedirect(resp.StatusCode) && loc != "" {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		redirected, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
		if err != nil {
			return "", fmt.Errorf("auth: build redirect request: %w", err)
		}
		for name, value := range cookies {
			redirected.AddCookie(&http.Cookie{Name: name, Value: value})
		}
		resp2, err := client.Do(redirected)
		if err != nil {
			return "", fmt.Errorf("auth: fetch bootstrap redirect: %w", err)
		}
		defer resp2.Body.Close()
		resp = resp2
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return "", fmt.Errorf("auth: read bootstrap page body: %w", err)
	}
	return string(body), nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// scrapeXSRFToken fetches the bootstrap page and extracts the xsrf token,
// per §4.2 refreshXsrf.
func scrapeXSRFToken(ctx context.Context, client *http.Client, cookies map[string]string) (string, error) {
	html, err := fetchBootstrapPage(ctx, client, cookies)
	if err != nil {
		return "", err
	}

	data, err := extractWizGlobalData(html)
	if err != nil {
		return "", err
	}

	if signInCheck, ok := data[wizFieldSignInCheck].(string); ok && signInCheck == wizValueSignInUI {
		return "", xerrors.New(xerrors.NotLoggedIn, "auth", "bootstrap page indicates signed-out session")
	}

	token, ok := data[wizFieldSMqcke].(string)
	if !ok || token == "" {
		return "", xerrors.New(xerrors.BootstrapUnavailable, "auth", "WIZ_global_data has no %s field", wizFieldSMqcke)
	}
	return token, nil
}
