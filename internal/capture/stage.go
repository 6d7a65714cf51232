package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInsufficientFrames is returned when fewer frames are staged than a
// sequence needs.
var ErrInsufficientFrames = errors.New("not enough frames")

// StagedFrame is one image waiting in the staging directory.
type StagedFrame struct {
	Name    string
	Path    string
	ModTime time.Time
}

// Stage is the staging directory shared by frame producers and the
// sequence assembler. Frames are consumed oldest first by modification
// time. Frames handed out by Take are hidden from later calls until they
// are removed or released.
type Stage struct {
	dir string

	mu      sync.Mutex
	claimed map[string]bool
}

// NewStage creates the directory if needed.
func NewStage(dir string) (*Stage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stage{dir: dir, claimed: make(map[string]bool)}, nil
}

// Dir returns the staging directory path.
func (s *Stage) Dir() string {
	return s.dir
}

// IsFrameFile reports whether name has an accepted image extension.
func IsFrameFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// Put writes r as a new frame and returns its name. ext selects the image
// extension and defaults to .jpg. The file only becomes visible once fully
// written.
func (s *Stage) Put(ext string, r io.Reader) (string, error) {
	if ext == "" {
		ext = ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), uuid.New().String(), strings.ToLower(ext))
	if !IsFrameFile(name) {
		return "", fmt.Errorf("unsupported frame extension %q", ext)
	}

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return "", fmt.Errorf("create frame: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish frame: %w", err)
	}
	return name, nil
}

// Pending lists unclaimed frames, oldest first. Ties are broken by name.
func (s *Stage) Pending() ([]StagedFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Stage) pendingLocked() ([]StagedFrame, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list staging dir: %w", err)
	}

	var frames []StagedFrame
	for _, e := range entries {
		if e.IsDir() || !IsFrameFile(e.Name()) || s.claimed[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		frames = append(frames, StagedFrame{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		if !frames[i].ModTime.Equal(frames[j].ModTime) {
			return frames[i].ModTime.Before(frames[j].ModTime)
		}
		return frames[i].Name < frames[j].Name
	})
	return frames, nil
}

// Take claims the n oldest frames. When fewer than n are pending it
// claims nothing and returns ErrInsufficientFrames.
func (s *Stage) Take(n int) ([]StagedFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames, err := s.pendingLocked()
	if err != nil {
		return nil, err
	}
	if len(frames) < n {
		return nil, fmt.Errorf("%w (need at least %d, have %d)", ErrInsufficientFrames, n, len(frames))
	}

	frames = frames[:n]
	for _, f := range frames {
		s.claimed[f.Name] = true
	}
	return frames, nil
}

// Remove deletes a claimed frame.
func (s *Stage) Remove(f StagedFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claimed, f.Name)
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Release returns claimed frames to the queue untouched.
func (s *Stage) Release(frames ...StagedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range frames {
		delete(s.claimed, f.Name)
	}
}
