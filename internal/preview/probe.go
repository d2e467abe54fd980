package preview

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	// Decoders for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sethvargo/go-retry"

	"github.com/justyntemme/shelf/internal/debug"
)

// Prober loads just enough content to learn its type and, for images, its
// dimensions. It understands http(s) URLs, file URLs and plain paths.
type Prober struct {
	Client *http.Client

	// Retries bounds retries of 5xx and transport failures on http URLs.
	Retries uint64
	// Backoff is the initial delay between retries.
	Backoff time.Duration
	// Token, when set, is sent as a bearer token.
	Token string
}

// NewProber returns a Prober with a default HTTP client.
func NewProber() *Prober {
	return &Prober{
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: 2,
		Backoff: 200 * time.Millisecond,
	}
}

// Load implements Loader.
func (p *Prober) Load(ctx context.Context, rawURL string) (Info, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Info{}, fmt.Errorf("parse url: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return p.loadHTTP(ctx, rawURL)
	case "file":
		return p.loadFile(ctx, u.Path)
	case "":
		return p.loadFile(ctx, u.Path)
	default:
		return Info{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (p *Prober) loadFile(ctx context.Context, name string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	f, err := os.Open(name)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", name)
	}

	info, err := inspect(f, mime.TypeByExtension(path.Ext(name)))
	info.Size = st.Size()
	return info, err
}

var errRetryable = errors.New("retryable")

func (p *Prober) loadHTTP(ctx context.Context, rawURL string) (Info, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var info Info
	b := retry.WithMaxRetries(p.Retries, retry.NewExponential(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		if p.Token != "" {
			req.Header.Set("Authorization", "Bearer "+p.Token)
		}

		resp, err := client.Do(req)
		if err != nil {
			debug.Log(debug.PREVIEW, "probe: %s: %v", rawURL, err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("content request failed: status %d", resp.StatusCode)
		}

		info, err = inspect(resp.Body, resp.Header.Get("Content-Type"))
		info.Size = resp.ContentLength
		return err
	})
	return info, err
}

// Image types with a registered config decoder. Other media is reported by
// type and size only.
var decodable = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/x-ms-bmp": true,
	"image/tiff": true,
	"image/webp": true,
}

// inspect sniffs the content type and decodes image headers.
func inspect(r io.Reader, declared string) (Info, error) {
	br := bufio.NewReaderSize(r, 512)
	head, _ := br.Peek(512)

	ct := declared
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(head)
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}

	info := Info{ContentType: ct}
	if !decodable[ct] {
		return info, nil
	}

	cfg, format, err := image.DecodeConfig(br)
	if err != nil {
		return info, fmt.Errorf("decode %s: %w", ct, err)
	}
	debug.Log(debug.PREVIEW, "inspect: format=%s size=%dx%d", format, cfg.Width, cfg.Height)
	info.Width, info.Height = cfg.Width, cfg.Height
	return info, nil
}
