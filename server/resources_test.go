package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVersionPage(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/version")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body) != "1.0.0-test (Go)\n" {
		t.Fatalf("body = %q", body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("content-type = %q", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("ACAO missing")
	}
}

func TestHelpPageSchemeSelection(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/help")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "curl http://") {
		t.Fatalf("expected http curl examples, body = %q", body)
	}
	if !strings.Contains(string(body), "/mypath") {
		t.Fatalf("expected /mypath substitution, body = %q", body)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/help", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET with X-Forwarded-Proto: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "curl https://") {
		t.Fatalf("expected https curl examples behind a proxy, body = %q", body)
	}
}

func TestFaviconAndRobots(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/favicon.ico")
	if err != nil {
		t.Fatalf("GET /favicon.ico: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("/favicon.ico status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/robots.txt")
	if err != nil {
		t.Fatalf("GET /robots.txt: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("/robots.txt status = %d", resp.StatusCode)
	}
	if len(body) != 0 {
		t.Fatalf("/robots.txt body = %q, want empty", body)
	}
}

func TestNoscriptNonceMatchesPolicy(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/noscript")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	csp := resp.Header.Get("Content-Security-Policy")
	const marker = "style-src 'nonce-"
	i := strings.Index(csp, marker)
	if i < 0 {
		t.Fatalf("CSP = %q", csp)
	}
	rest := csp[i+len(marker):]
	j := strings.Index(rest, "'")
	if j < 0 {
		t.Fatalf("CSP nonce not terminated: %q", csp)
	}
	nonce := rest[:j]
	if !strings.Contains(string(body), "<style nonce=\""+nonce+"\">") {
		t.Fatalf("style nonce does not match CSP nonce %q", nonce)
	}
}

func TestNoscriptFormTargetsChosenPath(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/noscript?path=/mypath&mode=text")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `action="/mypath"`) {
		t.Fatalf("form should target the chosen path, body = %q", body)
	}
	if !strings.Contains(string(body), "<textarea") {
		t.Fatalf("mode=text should render a textarea, body = %q", body)
	}
}

func TestHTMLEscape(t *testing.T) {
	got := htmlEscape(`<a href="x">&'</a>`)
	want := "&lt;a href=&quot;x&quot;&gt;&amp;&#39;&lt;/a&gt;"
	if got != want {
		t.Fatalf("htmlEscape = %q, want %q", got, want)
	}
}

// TestHeadMatchesGetOnReservedPaths checks that for every reserved path a
// HEAD response carries the same status and headers as GET, ignoring Date
// and the noscript page's per-response CSP nonce.
func TestHeadMatchesGetOnReservedPaths(t *testing.T) {
	s := testServer()
	ts := httptest.NewServer(s)
	defer ts.Close()

	paths := []string{"/", "/noscript", "/version", "/help", "/favicon.ico", "/robots.txt"}
	ignored := map[string]bool{"Date": true, "Content-Security-Policy": true}

	for _, path := range paths {
		getResp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		io.Copy(io.Discard, getResp.Body)
		getResp.Body.Close()

		headResp, err := http.Head(ts.URL + path)
		if err != nil {
			t.Fatalf("HEAD %s: %v", path, err)
		}
		headResp.Body.Close()

		if getResp.StatusCode != headResp.StatusCode {
			t.Errorf("%s: GET status %d != HEAD status %d", path, getResp.StatusCode, headResp.StatusCode)
		}
		for name, values := range getResp.Header {
			if ignored[name] {
				continue
			}
			headValues := headResp.Header[name]
			if len(headValues) != len(values) {
				t.Errorf("%s: header %s: GET %v != HEAD %v", path, name, values, headValues)
				continue
			}
			for i := range values {
				if headValues[i] != values[i] {
					t.Errorf("%s: header %s: GET %v != HEAD %v", path, name, values, headValues)
					break
				}
			}
		}
		for name := range headResp.Header {
			if ignored[name] {
				continue
			}
			if _, ok := getResp.Header[name]; !ok {
				t.Errorf("%s: HEAD-only header %s", path, name)
			}
		}
	}
}
