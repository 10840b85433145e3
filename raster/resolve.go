package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Resolver opens the bytes behind an image block's src.
type Resolver interface {
	Open(ctx context.Context, src string) (io.ReadCloser, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, src string) (io.ReadCloser, error)

// Open implements Resolver.
func (f ResolverFunc) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	return f(ctx, src)
}

// DefaultResolver opens local paths, file:// and http(s):// URLs and base64
// data: URIs. Relative paths are resolved against BaseDir.
type DefaultResolver struct {
	Client  *http.Client
	BaseDir string
}

// Open implements Resolver.
func (d DefaultResolver) Open(ctx context.Context, src string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		return decodeDataURI(src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return d.fetch(ctx, src)
	case strings.HasPrefix(src, "file://"):
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("raster: %s: %w", src, err)
		}
		return os.Open(u.Path)
	}
	path := src
	if d.BaseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(d.BaseDir, path)
	}
	return os.Open(path)
}

func (d DefaultResolver) fetch(ctx context.Context, src string) (io.ReadCloser, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", src, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raster: fetching %s: %w", src, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("raster: fetching %s: %s", src, resp.Status)
	}
	return resp.Body, nil
}

func decodeDataURI(src string) (io.ReadCloser, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("raster: malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("raster: data URI: %w", err)
		}
		return io.NopCloser(strings.NewReader(s)), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("raster: data URI: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
