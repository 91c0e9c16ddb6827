package fetcher

import (
	"mime"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeBody converts body to UTF-8. A charset named in the Content-Type
// header wins; otherwise the encoding is sniffed from BOMs and <meta> tags.
func decodeBody(body []byte, contentType string) (string, error) {
	enc, err := headerEncoding(contentType)
	if err != nil || enc == nil {
		enc, _, _ = charset.DetermineEncoding(body, contentType)
	}
	if enc == encoding.Nop {
		return string(body), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrap(err, "decode body")
	}
	return string(out), nil
}

func headerEncoding(contentType string) (encoding.Encoding, error) {
	if contentType == "" {
		return nil, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, eris.Wrap(err, "parse content type")
	}
	name := params["charset"]
	if name == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "unsupported charset %q", name)
	}
	return enc, nil
}
