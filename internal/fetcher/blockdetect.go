package fetcher

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of anti-bot wall in front of a website.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock looks for signs that resp is an interstitial rather than the
// business website. Captcha markers only count on non-2xx responses since
// contact forms routinely embed one.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-mitigated") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		bytes.Contains(lower, []byte("cf-challenge")) {
		return BlockCloudflare
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if !ok && bytes.Contains(lower, []byte("captcha")) {
		return BlockCaptcha
	}

	if len(body) < 2000 && bytes.Contains(lower, []byte("<noscript")) &&
		bytes.Contains(lower, []byte("enable javascript")) {
		return BlockJSShell
	}
	return BlockNone
}
