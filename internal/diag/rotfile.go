package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingFile 将日志写入指定目录，并按文件大小轮转；实现 zapcore.WriteSyncer。
// - 当前文件固定名：hghplan-current.txt
// - 轮转：当 size+len(p) 超过 maxBytes 时，将当前文件重命名为 hghplan-<UTC 时间戳>.txt，重新创建 current。
type RotatingFile struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
	f        *os.File
	curSize  int64
}

// CurrentName: 当前日志文件名。
const CurrentName = "hghplan-current.txt"

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024 // 10 MiB 默认
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes}
}

// Write 写入一条完整事件（zap 每条事件一次 Write，末尾自带换行）。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return 0, err
	}
	// 空文件不轮转，避免单条超长事件造成空转
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// Sync 刷盘当前文件。
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, CurrentName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	oldPath := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	// 高精度时间戳，避免同秒冲突覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(filepath.Dir(oldPath), fmt.Sprintf("hghplan-%s.txt", ts))
	if err := os.Rename(oldPath, rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	return w.ensureOpen()
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		return err
	}
	return nil
}
