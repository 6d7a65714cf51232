package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"
)

// PlaybackCamera replays a fixed list of frames as if they came from a
// device. It backs tests and the --replay mode of signseq-capture.
type PlaybackCamera struct {
	frames []*gocv.Mat
	loop   bool
	owned  bool

	mu   sync.Mutex
	next int
	open bool
}

// NewPlaybackCamera replays frames owned by the caller.
func NewPlaybackCamera(frames []*gocv.Mat, loop bool) *PlaybackCamera {
	return &PlaybackCamera{frames: frames, loop: loop}
}

// LoadPlaybackCamera decodes every frame file in dir, in name order. The
// camera owns the decoded frames and releases them on Release.
func LoadPlaybackCamera(dir string, loop bool) (*PlaybackCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsFrameFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	c := &PlaybackCamera{loop: loop, owned: true}
	for _, name := range names {
		m := gocv.IMRead(filepath.Join(dir, name), gocv.IMReadColor)
		if m.Empty() {
			m.Close()
			c.Release()
			return nil, fmt.Errorf("%w: %s", ErrUnreadableFrame, name)
		}
		c.frames = append(c.frames, &m)
	}
	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}
	return c, nil
}

// Open rewinds to the first frame.
func (c *PlaybackCamera) Open() error {
	c.mu.Lock()
	c.open, c.next = true, 0
	c.mu.Unlock()
	return nil
}

func (c *PlaybackCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}

// Release frees frames loaded from disk. Frames passed to
// NewPlaybackCamera stay with the caller.
func (c *PlaybackCamera) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owned {
		return
	}
	for _, m := range c.frames {
		m.Close()
	}
	c.frames = nil
}

// ReadFrame returns a copy of the next frame; the caller closes it.
func (c *PlaybackCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return nil, ErrCameraNotOpen
	case len(c.frames) == 0:
		return nil, errors.New("playback camera has no frames")
	case c.next == len(c.frames) && !c.loop:
		return nil, ErrNoMoreFrames
	case c.next == len(c.frames):
		c.next = 0
	}

	frame := c.frames[c.next].Clone()
	c.next++
	return &frame, nil
}

func (c *PlaybackCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Len reports how many frames one pass plays.
func (c *PlaybackCamera) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}
