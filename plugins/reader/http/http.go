package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hghplan/pkg/contract"
)

// DefaultMaxBytes: 单个输入文档的默认读取上限（8MiB）。
const DefaultMaxBytes = 8 << 20

// Options 为 HTTP Reader 的可选配置。
type Options struct {
	// Headers: 附加请求头（如 Authorization）。
	Headers map[string]string `json:"headers"`
	// MaxBytes: 响应体读取上限；超出部分截断后由解码器报错。<=0 使用默认。
	MaxBytes int64 `json:"max_bytes"`
	// TimeoutMS: 客户端兜底超时；实际以 ctx 为准。0 不设置。
	TimeoutMS int `json:"timeout_ms"`
}

// Reader 通过 HTTP GET 打开输入源。
type Reader struct {
	client   *http.Client
	headers  map[string]string
	maxBytes int64
}

// New 创建 HTTP Reader。
func New(opts *Options) *Reader {
	r := &Reader{client: &http.Client{}, maxBytes: DefaultMaxBytes}
	if opts == nil {
		return r
	}
	if opts.TimeoutMS > 0 {
		r.client.Timeout = time.Duration(opts.TimeoutMS) * time.Millisecond
	}
	if opts.MaxBytes > 0 {
		r.maxBytes = opts.MaxBytes
	}
	if len(opts.Headers) > 0 {
		r.headers = make(map[string]string, len(opts.Headers))
		for k, v := range opts.Headers {
			r.headers[k] = v
		}
	}
	return r
}

// Open 发起 GET；非 2xx 视为 ErrFetch，调用方负责 Close。
func (r *Reader) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return nil, fmt.Errorf("%w: not an http location %q", contract.ErrInvalidInput, location)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml, application/toml, */*")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", contract.ErrFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s: status %d", contract.ErrFetch, location, resp.StatusCode)
	}
	return &limitedBody{Reader: io.LimitReader(resp.Body, r.maxBytes), c: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	c io.Closer
}

func (b *limitedBody) Close() error { return b.c.Close() }

var _ contract.Reader = (*Reader)(nil)
