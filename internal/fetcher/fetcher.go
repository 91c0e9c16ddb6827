package fetcher

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves the text of a web page.
type Fetcher interface {
	// Fetch downloads url and returns its body decoded to UTF-8. Any failure
	// is reported as a *FetchError.
	Fetch(ctx context.Context, url string) (string, error)
}

// ErrFetchFailed matches every *FetchError via errors.Is.
var ErrFetchFailed = eris.New("fetch failed")

// FetchError reports a non-2xx response or a transport failure.
type FetchError struct {
	URL        string
	StatusCode int // 0 for transport failures
	Block      BlockType
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Block != BlockNone:
		return fmt.Sprintf("fetch %s: blocked (%s, status %d)", e.URL, e.Block, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: failed", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets callers test errors.Is(err, ErrFetchFailed).
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }
