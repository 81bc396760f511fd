package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os/exec"
	"time"
)

// errNoPicture is returned when ffmpeg produced nothing usable, usually
// because the buffer did not contain a full keyframe yet.
var errNoPicture = errors.New("webrtc: no decodable picture")

// Decoder turns an H264 Annex-B buffer into one picture with ffmpeg.
type Decoder struct {
	FFmpegPath string
	Timeout    time.Duration
}

// Decode decodes the first picture in data.
func (d Decoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if len(data) < 100 {
		return nil, errNoPicture
	}
	bin := d.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("webrtc: ffmpeg not found: %w", err)
		}
		return nil, errNoPicture
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil || isBlank(img) {
		return nil, errNoPicture
	}
	return img, nil
}

// isBlank reports frames that are tiny, near black, or the uniform gray
// decoders emit before a keyframe arrives.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return true
	}

	var rSum, gSum, bSum, n int
	for y := b.Min.Y; y < b.Max.Y; y += max(b.Dy()/10, 1) {
		for x := b.Min.X; x < b.Max.X; x += max(b.Dx()/10, 1) {
			r, g, bl, _ := img.At(x, y).RGBA()
			rSum += int(r >> 8)
			gSum += int(g >> 8)
			bSum += int(bl >> 8)
			n++
		}
	}
	if n == 0 {
		return true
	}
	avgR, avgG, avgB := rSum/n, gSum/n, bSum/n

	if avgR < 30 && avgG < 30 && avgB < 30 {
		return true
	}
	diff := abs(avgR-avgG) + abs(avgG-avgB) + abs(avgR-avgB)
	return diff < 15 && avgR > 100 && avgR < 150
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
