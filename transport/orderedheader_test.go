package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOrderedHeader_SetReplacesExistingKeyCaseInsensitively(t *testing.T) {
	h := &OrderedHeader{}
	h.Add("X-Foo", "1")
	h.Set("x-foo", "2")
	if got := len(h.entries); got != 1 {
		t.Fatalf("expected 1 entry after Set, got %d", got)
	}
	if h.entries[0].value != "2" {
		t.Errorf("value = %q, want 2", h.entries[0].value)
	}
}

func TestOrderedHeader_ApplyToRequestPreservesCasing(t *testing.T) {
	h := &OrderedHeader{}
	h.Add("sec-ch-ua-platform", `"Windows"`)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	h.ApplyToRequest(req)

	if _, ok := req.Header["sec-ch-ua-platform"]; !ok {
		t.Errorf("expected raw-cased key to survive ApplyToRequest, got %v", req.Header)
	}
}

func TestOrderedHeader_Clone(t *testing.T) {
	h := &OrderedHeader{}
	h.Add("A", "1")
	c := h.Clone()
	c.Add("B", "2")
	if len(h.entries) != 1 {
		t.Errorf("original mutated by clone: %d entries", len(h.entries))
	}
	if len(c.entries) != 2 {
		t.Errorf("clone missing appended entry: %d entries", len(c.entries))
	}
}
