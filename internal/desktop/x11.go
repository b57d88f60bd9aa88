package desktop

import (
	"context"
	"strconv"
	"strings"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// X11Config configures the local X11 backend.
type X11Config struct {
	Display     string // e.g. ":1"
	TypeDelayMs int    // inter-keystroke delay for type actions
}

// X11Backend drives a local X11 display with xdotool and captures it with scrot.
type X11Backend struct {
	*dispatcher
	display string
	delay   int
	runner  Runner
}

// NewX11Backend creates a backend for the given display.
func NewX11Backend(cfg X11Config, opts Options) *X11Backend {
	if cfg.Display == "" {
		cfg.Display = ":1"
	}
	if cfg.TypeDelayMs <= 0 {
		cfg.TypeDelayMs = 12
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	b := &X11Backend{display: cfg.Display, delay: cfg.TypeDelayMs, runner: opts.Runner}
	b.dispatcher = newDispatcher("x11", "Action failed: ", b, opts)
	return b
}

func (b *X11Backend) xdotool(ctx context.Context, args ...string) error {
	_, err := b.runner.Run(ctx, []string{"DISPLAY=" + b.display}, "xdotool", args...)
	return err
}

func moveArgs(p v1.Point) []string {
	return []string{"mousemove", "--sync", strconv.Itoa(p.X), strconv.Itoa(p.Y)}
}

func (b *X11Backend) click(ctx context.Context, p v1.Point, button, count int) error {
	args := moveArgs(p)
	args = append(args, "click")
	if count > 1 {
		args = append(args, "--repeat", strconv.Itoa(count))
	}
	args = append(args, strconv.Itoa(button))
	return b.xdotool(ctx, args...)
}

func (b *X11Backend) move(ctx context.Context, p v1.Point) error {
	return b.xdotool(ctx, moveArgs(p)...)
}

func (b *X11Backend) wheel(ctx context.Context, button int) error {
	return b.xdotool(ctx, "click", strconv.Itoa(button))
}

func (b *X11Backend) typeText(ctx context.Context, text string) error {
	return b.xdotool(ctx, "type", "--delay", strconv.Itoa(b.delay), "--", text)
}

// pressKey accepts xdotool key syntax; whitespace separates successive keys.
func (b *X11Backend) pressKey(ctx context.Context, combo string) error {
	args := append([]string{"key", "--"}, strings.Fields(combo)...)
	return b.xdotool(ctx, args...)
}

func (b *X11Backend) keyDown(ctx context.Context, key string) error {
	args := append([]string{"keydown", "--"}, strings.Fields(key)...)
	return b.xdotool(ctx, args...)
}

func (b *X11Backend) keyUp(ctx context.Context, key string) error {
	args := append([]string{"keyup", "--"}, strings.Fields(key)...)
	return b.xdotool(ctx, args...)
}

func (b *X11Backend) drag(ctx context.Context, from, to v1.Point) error {
	args := moveArgs(from)
	args = append(args, "mousedown", "1")
	args = append(args, moveArgs(to)...)
	args = append(args, "mouseup", "1")
	return b.xdotool(ctx, args...)
}

func (b *X11Backend) buttonDown(ctx context.Context, p *v1.Point) error {
	var args []string
	if p != nil {
		args = moveArgs(*p)
	}
	return b.xdotool(ctx, append(args, "mousedown", "1")...)
}

func (b *X11Backend) buttonUp(ctx context.Context, p *v1.Point) error {
	var args []string
	if p != nil {
		args = moveArgs(*p)
	}
	return b.xdotool(ctx, append(args, "mouseup", "1")...)
}

func (b *X11Backend) capture(ctx context.Context, path string) error {
	_, err := b.runner.Run(ctx, []string{"DISPLAY=" + b.display}, "scrot", "-o", path)
	return err
}
