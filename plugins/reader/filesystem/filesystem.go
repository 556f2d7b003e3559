package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hghplan/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// BaseDir: 相对位置的解析基准目录；为空使用当前工作目录。
	BaseDir string `json:"base_dir"`
}

// FileSystem 实现基于本地文件与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	baseDir string
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	base := ""
	if opts != nil {
		if opts.BufSize > 0 {
			b = opts.BufSize
		}
		base = opts.BaseDir
	}
	return &FileSystem{bufSize: b, baseDir: base}
}

// Resolve 返回位置对应的本地路径（"-" 原样返回）。
func (r *FileSystem) Resolve(location string) string {
	if location == "-" || location == "" || filepath.IsAbs(location) || r.baseDir == "" {
		return location
	}
	return filepath.Join(r.baseDir, location)
}

// Open 打开单个位置；"-" 表示 STDIN。
// 符号链接仅跟随到常规文件；目录、设备等非常规目标返回 ErrFetch。
func (r *FileSystem) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", contract.ErrInvalidInput)
	}
	if location == "-" {
		// STDIN 不由 Reader 关闭
		return newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize), nil
	}

	p := r.Resolve(location)
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrFetch, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", contract.ErrFetch, location)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrFetch, err)
	}
	return newBufferedCloser(f, r.bufSize), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

var _ contract.Reader = (*FileSystem)(nil)
