// Package runlock keeps two invocations from working on the same data
// directory at once. The lock is an advisory flock on a file in the
// directory and disappears with the process.
package runlock

import (
  "errors"
  "fmt"
  "os"
  "path/filepath"
  "strconv"
  "strings"

  "golang.org/x/sys/unix"
)

const FileName = ".channel-tools.lock"

var ErrLocked = errors.New("another channel-tools run holds the lock")

type Lock struct {
  file *os.File
}

// Acquire takes the lock without blocking. When another process holds it the
// error wraps ErrLocked and names that process when it can.
func Acquire(dir string) (*Lock, error) {
  if err := os.MkdirAll(dir, 0750); err != nil {
    return nil, fmt.Errorf("runlock: %w", err)
  }
  path := filepath.Join(dir, FileName)
  f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0640)
  if err != nil {
    return nil, fmt.Errorf("runlock: %w", err)
  }
  if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
    holder := readHolder(f)
    f.Close()
    if errors.Is(err, unix.EWOULDBLOCK) {
      if holder != "" {
        return nil, fmt.Errorf("%w (pid %s)", ErrLocked, holder)
      }
      return nil, ErrLocked
    }
    return nil, fmt.Errorf("runlock: flock: %w", err)
  }
  if err := f.Truncate(0); err == nil {
    _, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
  }
  return &Lock{file: f}, nil
}

func (l *Lock) Release() error {
  if l == nil || l.file == nil {
    return nil
  }
  err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
  cerr := l.file.Close()
  l.file = nil
  if err != nil {
    return err
  }
  return cerr
}

func readHolder(f *os.File) string {
  buf := make([]byte, 32)
  n, _ := f.ReadAt(buf, 0)
  return strings.TrimSpace(string(buf[:n]))
}
