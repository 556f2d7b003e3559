package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hghplan/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 默认值：true。未提供该字段时采用原子写；显式 false 可关闭。
	// 展示层可能在任意时刻读取模型，半写文件不可见。
	Atomic *bool `json:"atomic,omitempty"`
	// Backup: 替换前将旧产物硬链接为 "<name>.bak"（最佳努力）。
	Backup bool `json:"backup,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用实现默认。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将产物写入本地输出根目录。
type FS struct {
	root    string
	atomic  bool
	backup  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: output_dir is required", contract.ErrInvalidInput)
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: opts.OutputDir, atomic: atomic, backup: opts.Backup, permF: pf, permD: pd, bufSize: bsz}, nil
}

var _ contract.Writer = (*FS)(nil)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

// Path 返回 id 映射到的目标路径；越界时返回 ErrPathInvalid。
func (w *FS) Path(id contract.ArtifactID) (string, error) { return w.mapPath(id) }

// Write 将 r 的全部字节写入到基于 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.backup {
		w.linkBackup(dest)
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: Clean + Join + 越界校验。
// 禁止绝对路径、父级逃逸与 Windows 卷名；允许子目录。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	switch {
	case rel == "." || rel == "":
		return "", fmt.Errorf("%w: empty artifact id", contract.ErrPathInvalid)
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", fmt.Errorf("%w: absolute artifact id %q", contract.ErrPathInvalid, id)
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", fmt.Errorf("%w: artifact id %q escapes output dir", contract.ErrPathInvalid, id)
	}
	return filepath.Join(w.root, rel), nil
}

// linkBackup: 旧产物存在时保留一份 .bak；失败不影响本次写入。
func (w *FS) linkBackup(dest string) {
	if _, err := os.Stat(dest); err != nil {
		return
	}
	bak := dest + ".bak"
	_ = os.Remove(bak)
	_ = os.Link(dest, bak)
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// Windows 上 os.Rename 使用 MoveFileEx(REPLACE_EXISTING)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 最佳努力同步父目录元数据（不支持的平台静默忽略）。
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
