package player

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileVolumeStore 把音量保存为一个小 JSON 文件，相当于浏览器端的 localStorage。
type FileVolumeStore struct {
	path string
}

func NewFileVolumeStore(path string) *FileVolumeStore {
	return &FileVolumeStore{path: path}
}

type volumeFile struct {
	Volume float64 `json:"musicVolume"`
}

func (s *FileVolumeStore) LoadVolume() (float64, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read volume %s: %w", s.path, err)
	}
	var vf volumeFile
	if err := json.Unmarshal(b, &vf); err != nil {
		return 0, false, fmt.Errorf("decode volume %s: %w", s.path, err)
	}
	return vf.Volume, true, nil
}

func (s *FileVolumeStore) SaveVolume(v float64) error {
	b, err := json.Marshal(volumeFile{Volume: v})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create volume dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write volume: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename volume: %w", err)
	}
	return nil
}
