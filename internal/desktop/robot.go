// File: internal/desktop/robot.go
package desktop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"go.uber.org/zap"
)

// Robot drives the real display through robotgo. It implements both
// humanoid.Executor and vision.Screen, so the whole core shares one device.
type Robot struct {
	logger *zap.Logger
}

// NewRobot creates the production backend.
func NewRobot(logger *zap.Logger) *Robot {
	return &Robot{logger: logger.Named("desktop")}
}

// Capture grabs the full primary display.
func (r *Robot) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := robotgo.CaptureImg()
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	if img == nil {
		return nil, errors.New("capture returned an empty image")
	}
	return img, nil
}

// Size reports the OS input-space resolution of the primary display.
func (r *Robot) Size() (int, int, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("display reported invalid size %dx%d", w, h)
	}
	return w, h, nil
}

func (r *Robot) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Robot) MoveMouse(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(x, y)
	return nil
}

func (r *Robot) MouseToggle(ctx context.Context, button humanoid.MouseButton, down bool) error {
	if err := ctx.Err(); err != nil && down {
		return err
	}
	dir := "up"
	if down {
		dir = "down"
	}
	return robotgo.Toggle(string(button), dir)
}

// KeyToggle presses or releases one key. Releases are attempted even on a
// cancelled context so chords never stay stuck.
func (r *Robot) KeyToggle(ctx context.Context, key string, down bool) error {
	if err := ctx.Err(); err != nil && down {
		return err
	}
	dir := "up"
	if down {
		dir = "down"
	}
	return robotgo.KeyToggle(key, dir)
}

func (r *Robot) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.TypeStr(text)
	return nil
}

func (r *Robot) SetClipboard(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}

// ScrollWheel turns the wheel; positive clicks scroll up.
func (r *Robot) ScrollWheel(ctx context.Context, clicks int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case clicks > 0:
		robotgo.ScrollDir(clicks, "up")
	case clicks < 0:
		robotgo.ScrollDir(-clicks, "down")
	}
	return nil
}

func (r *Robot) Location(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	x, y := robotgo.Location()
	return x, y, nil
}

var (
	_ humanoid.Executor = (*Robot)(nil)
	_ vision.Screen     = (*Robot)(nil)
)
