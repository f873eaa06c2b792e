package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"
)

// wizGlobalDataMarker is the literal prefix the bootstrap page embeds the
// object we need between <script> tags (§4.2): `window.WIZ_global_data =
// {...};`.
const wizGlobalDataMarker = "window.WIZ_global_data ="

// extractWizGlobalData locates the window.WIZ_global_data object literal in
// html and returns it decoded as a map. The literal is, per §4.2,
// syntactically valid JSON in the common case; extractObjectLiteral finds
// its exact boundaries by brace-balance scanning (a plain "up to the next
// semicolon" search would break on string values containing ';').
func extractWizGlobalData(html string) (map[string]interface{}, error) {
	idx := strings.Index(html, wizGlobalDataMarker)
	if idx < 0 {
		return nil, errBootstrapMarkerNotFound
	}
	rest := html[idx+len(wizGlobalDataMarker):]

	objText, err := extractObjectLiteral(rest)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(objText), &data); err == nil {
		return data, nil
	}

	// Fall back to evaluating it as a JS object literal: the page is
	// hand-written JS, not a JSON endpoint, so it may carry trailing
	// commas or single-quoted keys that encoding/json rejects.
	return evalObjectLiteral(objText)
}

// extractObjectLiteral scans s (which starts at or before the opening '{')
// for the first top-level JSON-ish object literal, tracking brace depth and
// skipping over string contents (including escaped quotes) so that braces
// inside string values don't confuse the boundary search.
func extractObjectLiteral(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errBootstrapMarkerNotFound
	}

	depth := 0
	inString := false
	var quote byte
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString = true
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errBootstrapMarkerNotFound
}

// ottoPool is a small pool of JS VMs for evaluating non-strict-JSON object
// literals, grounded on jschallenge.OttoSolver's mutex-guarded-VM shape:
// one VM is created lazily and reused, serialised by a mutex, since a
// fresh *otto.Otto per call would be wasteful for a scrape that only
// happens on xsrf refresh.
var ottoPool = struct {
	sync.Mutex
	vm *otto.Otto
}{}

func evalObjectLiteral(objText string) (map[string]interface{}, error) {
	ottoPool.Lock()
	defer ottoPool.Unlock()

	if ottoPool.vm == nil {
		ottoPool.vm = otto.New()
	}
	val, err := ottoPool.vm.Run("(" + objText + ")")
	if err != nil {
		return nil, fmt.Errorf("auth: evaluate WIZ_global_data literal: %w", err)
	}
	exported, err := val.Export()
	if err != nil {
		return nil, fmt.Errorf("auth: export evaluated WIZ_global_data: %w", err)
	}
	data, ok := exported.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("auth: evaluated WIZ_global_data is not an object (%T)", exported)
	}
	return data, nil
}
