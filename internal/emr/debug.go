// internal/emr/debug.go
package emr

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// frameMetadata describes one dumped scroll session.
type frameMetadata struct {
	TotalScreenshots int    `json:"total_screenshots"`
	ScrollAmounts    []int  `json:"scroll_amounts"`
	TotalScroll      int    `json:"total_scroll"`
	Page             string `json:"page"`
	Timestamp        string `json:"timestamp"`
}

// dumpFrames writes every frame of a scroll pass as PNG plus a metadata.json
// into a fresh session directory under dir, and returns that directory.
func dumpFrames(dir, page string, frames []ScrollFrame, total int) (string, error) {
	stamp := time.Now().Format("20060102_150405.000")
	session := filepath.Join(dir, "scrolling_session_"+stamp)
	if err := os.MkdirAll(session, 0o755); err != nil {
		return "", err
	}

	meta := frameMetadata{
		TotalScreenshots: len(frames),
		ScrollAmounts:    make([]int, 0, len(frames)),
		TotalScroll:      total,
		Page:             page,
		Timestamp:        stamp,
	}
	for i, f := range frames {
		meta.ScrollAmounts = append(meta.ScrollAmounts, f.Offset)
		if f.Image == nil {
			continue
		}
		name := fmt.Sprintf("screenshot_%03d_scroll_%d.png", i, f.Offset)
		if err := writePNG(filepath.Join(session, name), f); err != nil {
			return "", err
		}
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(session, "metadata.json"), data, 0o644); err != nil {
		return "", err
	}
	return session, nil
}

func writePNG(path string, f ScrollFrame) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(out, f.Image)
}
