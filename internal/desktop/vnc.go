package desktop

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/compeek/compeek/internal/desktop/keymap"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// VNCConfig configures the VNC relay backend.
type VNCConfig struct {
	Host    string
	Port    int
	Timeout time.Duration // per relay call
}

// VNCBackend drives a remote framebuffer by running vncdo once per primitive.
// No connection is kept between calls.
type VNCBackend struct {
	*dispatcher
	server  string
	timeout time.Duration
	runner  Runner
}

// NewVNCBackend creates a backend for host:port.
func NewVNCBackend(cfg VNCConfig, opts Options) *VNCBackend {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5900
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	b := &VNCBackend{
		// vncdo's "::" separator takes a port rather than a display number.
		server:  fmt.Sprintf("%s::%d", cfg.Host, cfg.Port),
		timeout: cfg.Timeout,
		runner:  opts.Runner,
	}
	b.dispatcher = newDispatcher("vnc", "VNC action failed: ", b, opts)
	return b
}

// vncdo runs one relay call bounded by the per-call timeout.
func (b *VNCBackend) vncdo(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	_, err := b.runner.Run(ctx, nil, "vncdo", append([]string{"-s", b.server}, args...)...)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CommandError{
			Command:  commandLine("vncdo", args),
			ExitCode: -1,
			Timeout:  b.timeout,
			Err:      context.DeadlineExceeded,
		}
	}
	return err
}

func itoa(n int) string { return strconv.Itoa(n) }

func (b *VNCBackend) click(ctx context.Context, p v1.Point, button, count int) error {
	if err := b.vncdo(ctx, "move", itoa(p.X), itoa(p.Y), "click", itoa(button)); err != nil {
		return err
	}
	for i := 1; i < count; i++ {
		if err := b.vncdo(ctx, "click", itoa(button)); err != nil {
			return err
		}
	}
	return nil
}

func (b *VNCBackend) move(ctx context.Context, p v1.Point) error {
	return b.vncdo(ctx, "move", itoa(p.X), itoa(p.Y))
}

func (b *VNCBackend) wheel(ctx context.Context, button int) error {
	return b.vncdo(ctx, "click", itoa(button))
}

func (b *VNCBackend) typeText(ctx context.Context, text string) error {
	return b.vncdo(ctx, "type", text)
}

func (b *VNCBackend) pressKey(ctx context.Context, combo string) error {
	return b.vncdo(ctx, "key", keymap.VNCKeyOf(combo))
}

func (b *VNCBackend) keyDown(ctx context.Context, key string) error {
	return b.vncdo(ctx, "keydown", keymap.VNCKeyOf(key))
}

func (b *VNCBackend) keyUp(ctx context.Context, key string) error {
	return b.vncdo(ctx, "keyup", keymap.VNCKeyOf(key))
}

func (b *VNCBackend) drag(ctx context.Context, from, to v1.Point) error {
	steps := [][]string{
		{"move", itoa(from.X), itoa(from.Y)},
		{"mousedown", "1"},
		{"move", itoa(to.X), itoa(to.Y)},
		{"mouseup", "1"},
	}
	for _, s := range steps {
		if err := b.vncdo(ctx, s...); err != nil {
			return err
		}
	}
	return nil
}

func (b *VNCBackend) buttonDown(ctx context.Context, p *v1.Point) error {
	if p != nil {
		if err := b.move(ctx, *p); err != nil {
			return err
		}
	}
	return b.vncdo(ctx, "mousedown", "1")
}

func (b *VNCBackend) buttonUp(ctx context.Context, p *v1.Point) error {
	if p != nil {
		if err := b.move(ctx, *p); err != nil {
			return err
		}
	}
	return b.vncdo(ctx, "mouseup", "1")
}

func (b *VNCBackend) capture(ctx context.Context, path string) error {
	return b.vncdo(ctx, "capture", path)
}
