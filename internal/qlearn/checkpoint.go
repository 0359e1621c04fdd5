package qlearn

import (
  "encoding/binary"
  "errors"
  "fmt"
  "math"
  "os"
  "path/filepath"

  "github.com/fxamacker/cbor/v2"
  "github.com/zeebo/blake3"
)

const checkpointVersion = 1

var (
  ErrNoCheckpoint = errors.New("q-table checkpoint not found")
  ErrCorruptCheckpoint = errors.New("q-table checkpoint corrupt")
)

type checkpoint struct {
  Version int `cbor:"1,keyasint"`
  States int `cbor:"2,keyasint"`
  Actions int `cbor:"3,keyasint"`
  Values []float64 `cbor:"4,keyasint"`
  Sum []byte `cbor:"5,keyasint"`
}

type logger interface {
  Printf(format string, v ...any)
}

// Load reads the checkpoint at path. Missing files report ErrNoCheckpoint and
// files that fail to decode or verify report ErrCorruptCheckpoint.
func Load(path string) (*Table, error) {
  raw, err := os.ReadFile(path)
  if err != nil {
    if errors.Is(err, os.ErrNotExist) {
      return nil, ErrNoCheckpoint
    }
    return nil, err
  }
  var cp checkpoint
  if err := cbor.Unmarshal(raw, &cp); err != nil {
    return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
  }
  if cp.Version != checkpointVersion {
    return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptCheckpoint, cp.Version)
  }
  if cp.States != NumStates || cp.Actions != NumActions {
    return nil, fmt.Errorf("%w: shape %dx%d", ErrCorruptCheckpoint, cp.States, cp.Actions)
  }
  sum := checksum(cp.Values)
  if len(cp.Sum) != len(sum) || string(cp.Sum) != string(sum[:]) {
    return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptCheckpoint)
  }
  t := NewTable()
  if err := t.setValues(cp.Values); err != nil {
    return nil, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
  }
  return t, nil
}

// LoadOrZero falls back to a zero table when the checkpoint is absent or
// unreadable. The fallback is logged, never returned as an error.
func LoadOrZero(path string, log logger) *Table {
  t, err := Load(path)
  if err == nil {
    return t
  }
  if log != nil {
    if errors.Is(err, ErrNoCheckpoint) {
      log.Printf("qtable: no checkpoint at %s, starting from zero", path)
    } else {
      log.Printf("qtable: checkpoint %s unusable, starting from zero: %v", path, err)
    }
  }
  return NewTable()
}

// Save writes the table next to path and renames it into place, so a
// concurrent or later Load sees either the old or the new table.
func Save(path string, t *Table) error {
  values := t.values()
  sum := checksum(values)
  data, err := cbor.Marshal(checkpoint{
    Version: checkpointVersion,
    States: NumStates,
    Actions: NumActions,
    Values: values,
    Sum: sum[:],
  })
  if err != nil {
    return fmt.Errorf("encode q-table: %w", err)
  }

  dir := filepath.Dir(path)
  if err := os.MkdirAll(dir, 0750); err != nil {
    return fmt.Errorf("create checkpoint dir: %w", err)
  }
  tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
  if err != nil {
    return fmt.Errorf("create temporary checkpoint: %w", err)
  }
  tmpPath := tmp.Name()
  if _, err := tmp.Write(data); err != nil {
    tmp.Close()
    os.Remove(tmpPath)
    return fmt.Errorf("write temporary checkpoint: %w", err)
  }
  if err := tmp.Sync(); err != nil {
    tmp.Close()
    os.Remove(tmpPath)
    return fmt.Errorf("sync temporary checkpoint: %w", err)
  }
  if err := tmp.Close(); err != nil {
    os.Remove(tmpPath)
    return fmt.Errorf("close temporary checkpoint: %w", err)
  }
  if err := os.Rename(tmpPath, path); err != nil {
    os.Remove(tmpPath)
    return fmt.Errorf("rename checkpoint into place: %w", err)
  }
  return nil
}

func checksum(values []float64) [32]byte {
  buf := make([]byte, 8*len(values))
  for i, v := range values {
    binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
  }
  return blake3.Sum256(buf)
}
