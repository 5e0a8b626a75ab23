package staging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/lensworks/mediagate/internal/domain"
)

// Materializer turns an ImageRef into a staged Resource owned by one
// job. It never retries a failed fetch and never validates that the
// bytes decode as an image; transformers find that out themselves.
type Materializer struct {
	Store Store
	// Client serves http(s) refs. Its Timeout bounds a single fetch
	// independently of the job deadline.
	Client *http.Client
	// Objects serves s3 refs when configured; nil rejects them.
	Objects *minio.Client
	// MaxBytes caps one remote payload. Zero means uncapped.
	MaxBytes int64
}

func (m *Materializer) Materialize(ctx context.Context, ref domain.ImageRef, role, correlationID, ext string) (Resource, error) {
	key := ResourceKey(role, correlationID, ext)
	switch ref.Kind {
	case domain.RefInline:
		data, err := decodeBase64(ref.Data)
		if err != nil {
			return Resource{}, fmt.Errorf("decode %s: %w: %v", role, domain.ErrDecode, err)
		}
		res, err := m.Store.Put(ctx, key, bytes.NewReader(data))
		if err != nil {
			return Resource{}, fmt.Errorf("stage %s: %w", role, err)
		}
		return res, nil
	case domain.RefRemote:
		data, err := m.fetch(ctx, ref.URL)
		if err != nil {
			return Resource{}, fmt.Errorf("fetch %s: %w", role, err)
		}
		res, err := m.Store.Put(ctx, key, bytes.NewReader(data))
		if err != nil {
			return Resource{}, fmt.Errorf("stage %s: %w", role, err)
		}
		return res, nil
	default:
		return Resource{}, fmt.Errorf("%w: unsupported ref kind %q", domain.ErrInvalidRequest, ref.Kind)
	}
}

func decodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(clean)
}

func (m *Materializer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		return m.fetchObject(ctx, rawURL)
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		// A job-level cancel keeps its identity so it classifies as a
		// timeout rather than a fetch failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetch, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrFetch, rawURL, resp.StatusCode)
	}

	data, err := m.readCapped(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetch, ctx.Err())
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetch, rawURL, err)
	}
	return data, nil
}

func (m *Materializer) fetchObject(ctx context.Context, rawURL string) ([]byte, error) {
	if m.Objects == nil {
		return nil, fmt.Errorf("%w: object store not configured for %s", domain.ErrFetch, rawURL)
	}
	bucket, key, err := splitObjectURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	obj, err := m.Objects.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer obj.Close()

	data, err := m.readCapped(obj)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrFetch, ctx.Err())
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetch, rawURL, err)
	}
	return data, nil
}

func (m *Materializer) readCapped(r io.Reader) ([]byte, error) {
	if m.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, m.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > m.MaxBytes {
		return nil, fmt.Errorf("payload exceeds %d byte cap", m.MaxBytes)
	}
	return data, nil
}

func splitObjectURL(rawURL string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(rawURL, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid object url: %q", rawURL)
	}
	return parts[0], parts[1], nil
}
