package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/pulse-hrv/internal/config"
)

const (
	// InputV4L2 reads a Linux camera such as /dev/video0
	InputV4L2         InputFormat = "v4l2"
	InputAVFoundation InputFormat = "avfoundation"
	InputDShow        InputFormat = "dshow"

	// InputFile reads a recorded clip; ffmpeg probes the container
	InputFile InputFormat = ""
)

var validInputFormats = map[InputFormat]struct{}{
	InputV4L2:         {},
	InputAVFoundation: {},
	InputDShow:        {},
	InputFile:         {},
}

type InputFormat string

func (f InputFormat) String() string {
	return string(f)
}

/*
Example 1: Linux camera
    cfg := ffmpeg.Config{
        InputFormat: ffmpeg.InputV4L2,
        Input:       "/dev/video0",
        Width:       640,
        Height:      480,
        FrameRate:   30,
    }
    // Executes: ffmpeg -hide_banner -loglevel error -nostdin -f v4l2 -framerate 30 -video_size 640x480 \
    //           -i /dev/video0 -an -vf scale=640:480 -r 30 -f rawvideo -pix_fmt yuv420p -

Example 2: Recorded fingertip clip replayed in real time, 45 seconds
    cfg := ffmpeg.Config{
        Input:     "finger.mp4",
        Width:     320,
        Height:    240,
        FrameRate: 30,
        Duration:  config.NewDuration(45 * time.Second),
        Realtime:  true,
    }
*/

// Config is the `ffmpeg` camera configuration. Output is always raw I420 at
// the configured geometry and frame rate on stdout.
type Config struct {
	// Required
	Input     string  `yaml:"input" json:"input"`         // -i device or file
	Width     int     `yaml:"width" json:"width"`         // output width in pixels
	Height    int     `yaml:"height" json:"height"`       // output height in pixels
	FrameRate float64 `yaml:"frameRate" json:"frameRate"` // -r output frame rate

	// Optional
	InputFormat InputFormat     `yaml:"inputFormat" json:"inputFormat"` // -f demuxer (default: probe)
	Duration    config.Duration `yaml:"duration" json:"duration"`       // -t stop after (default: unlimited)
	Realtime    bool            `yaml:"realtime" json:"realtime"`       // -re read input at native rate
	Options     []string        `yaml:"options" json:"options"`         // extra input options, e.g. ["-pixel_format", "yuyv422"]
}

func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("ffmpeg.Config: input is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("ffmpeg.Config: invalid geometry: %dx%d", c.Width, c.Height)
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("ffmpeg.Config: geometry must be even for yuv420p: %dx%d", c.Width, c.Height)
	}
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		return fmt.Errorf("ffmpeg.Config: frame rate must be in (0, 240]: %0.2f", c.FrameRate)
	}
	if _, ok := validInputFormats[c.InputFormat]; !ok {
		return fmt.Errorf("ffmpeg.Config: invalid input format: %s", c.InputFormat)
	}
	if c.Duration < 0 {
		return fmt.Errorf("ffmpeg.Config: duration must not be negative: %s", c.Duration)
	}
	return nil
}

// Args returns the command line arguments for `ffmpeg`
func (c *Config) Args() ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	rate := strconv.FormatFloat(c.FrameRate, 'f', -1, 64)
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}

	if c.Realtime {
		args = append(args, "-re")
	}

	if c.InputFormat != InputFile {
		args = append(args,
			"-f", c.InputFormat.String(),
			"-framerate", rate,
			"-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}

	args = append(args, c.Options...)
	args = append(args, "-i", c.Input)

	if c.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(c.Duration.Std().Seconds(), 'f', -1, 64))
	}

	args = append(args,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", c.Width, c.Height),
		"-r", rate,
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-") // Always dump to stdout

	return args, nil
}

func (c *Config) String() string {
	args, err := c.Args()
	if err != nil {
		return fmt.Sprintf("ffmpeg.Config: failed to build args: %s", err)
	}
	return fmt.Sprintf("%s %s", Runtime, strings.Join(args, " "))
}
