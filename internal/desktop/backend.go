// Package desktop executes desktop actions against a local X11 display or a
// remote VNC framebuffer.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

// Backend executes actions. Failures are reported in the result, never returned.
type Backend interface {
	Name() string
	Execute(ctx context.Context, action v1.Action) v1.ActionResult
}

// Mouse buttons as numbered by X11 and RFB.
const (
	ButtonLeft       = 1
	ButtonMiddle     = 2
	ButtonRight      = 3
	ButtonWheelUp    = 4
	ButtonWheelDown  = 5
	ButtonWheelLeft  = 6
	ButtonWheelRight = 7
)

const slowAction = 100 * time.Millisecond

var wheelButtons = map[v1.ScrollDirection]int{
	v1.ScrollUp:    ButtonWheelUp,
	v1.ScrollDown:  ButtonWheelDown,
	v1.ScrollLeft:  ButtonWheelLeft,
	v1.ScrollRight: ButtonWheelRight,
}

// Options are shared by both backends.
type Options struct {
	Scale         Scaler
	ScreenshotDir string // "" means os.TempDir()
	Runner        Runner
	Logger        *logger.Logger
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// driver issues protocol primitives. Points are already in screen pixels.
type driver interface {
	click(ctx context.Context, p v1.Point, button, count int) error
	move(ctx context.Context, p v1.Point) error
	wheel(ctx context.Context, button int) error
	typeText(ctx context.Context, text string) error
	pressKey(ctx context.Context, combo string) error
	keyDown(ctx context.Context, key string) error
	keyUp(ctx context.Context, key string) error
	drag(ctx context.Context, from, to v1.Point) error
	buttonDown(ctx context.Context, p *v1.Point) error
	buttonUp(ctx context.Context, p *v1.Point) error
	capture(ctx context.Context, path string) error
}

// dispatcher maps actions onto driver primitives. Both backends embed it.
type dispatcher struct {
	name      string
	errPrefix string
	drv       driver
	shots     *screenshotter
	scale     Scaler
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *logger.Logger
}

func newDispatcher(name, errPrefix string, drv driver, opts Options) *dispatcher {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &dispatcher{
		name:      name,
		errPrefix: errPrefix,
		drv:       drv,
		shots:     &screenshotter{dir: opts.ScreenshotDir, scale: opts.Scale},
		scale:     opts.Scale,
		sleep:     sleep,
		logger:    log.WithFields(zap.String("component", "desktop-"+name)),
	}
}

// Name returns the backend name.
func (d *dispatcher) Name() string { return d.name }

// Execute validates and runs one action.
func (d *dispatcher) Execute(ctx context.Context, action v1.Action) v1.ActionResult {
	if err := action.Validate(); err != nil {
		if errors.Is(err, v1.ErrUnknownAction) {
			return v1.ActionResult{Error: fmt.Sprintf("Unknown action: %s", action.Action)}
		}
		return v1.ActionResult{Error: err.Error()}
	}

	start := time.Now()
	d.logger.Debug("executing action", zap.String("action", string(action.Action)))

	result, err := d.run(ctx, action)
	elapsed := time.Since(start)
	if err != nil {
		fields := []zap.Field{
			zap.String("action", string(action.Action)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		}
		var cerr *CommandError
		if errors.As(err, &cerr) {
			fields = append(fields, zap.Int("exit_code", cerr.ExitCode))
		}
		d.logger.Error("action failed", fields...)
		return v1.ActionResult{Error: d.errPrefix + err.Error()}
	}
	if elapsed > slowAction {
		d.logger.Debug("action finished", zap.String("action", string(action.Action)), zap.Duration("duration", elapsed))
	}
	return result
}

func (d *dispatcher) run(ctx context.Context, a v1.Action) (v1.ActionResult, error) {
	switch a.Action {
	case v1.ActionScreenshot:
		return d.screenshot(ctx, nil)
	case v1.ActionZoom:
		return d.screenshot(ctx, a.Region)
	case v1.ActionLeftClick:
		return v1.ActionResult{}, d.drv.click(ctx, d.point(a.Coordinate), ButtonLeft, 1)
	case v1.ActionRightClick:
		return v1.ActionResult{}, d.drv.click(ctx, d.point(a.Coordinate), ButtonRight, 1)
	case v1.ActionMiddleClick:
		return v1.ActionResult{}, d.drv.click(ctx, d.point(a.Coordinate), ButtonMiddle, 1)
	case v1.ActionDoubleClick:
		return v1.ActionResult{}, d.drv.click(ctx, d.point(a.Coordinate), ButtonLeft, 2)
	case v1.ActionTripleClick:
		return v1.ActionResult{}, d.drv.click(ctx, d.point(a.Coordinate), ButtonLeft, 3)
	case v1.ActionMouseMove:
		return v1.ActionResult{}, d.drv.move(ctx, d.point(a.Coordinate))
	case v1.ActionTypeText:
		return v1.ActionResult{}, d.drv.typeText(ctx, a.Text)
	case v1.ActionKey:
		return v1.ActionResult{}, d.drv.pressKey(ctx, a.Text)
	case v1.ActionScroll:
		return v1.ActionResult{}, d.scroll(ctx, a)
	case v1.ActionLeftClickDrag:
		return v1.ActionResult{}, d.drv.drag(ctx, d.point(a.StartCoordinate), d.point(a.Coordinate))
	case v1.ActionLeftMouseDown:
		return v1.ActionResult{}, d.drv.buttonDown(ctx, d.optionalPoint(a.Coordinate))
	case v1.ActionLeftMouseUp:
		return v1.ActionResult{}, d.drv.buttonUp(ctx, d.optionalPoint(a.Coordinate))
	case v1.ActionHoldKey:
		return v1.ActionResult{}, d.holdKey(ctx, a)
	case v1.ActionWait:
		return v1.ActionResult{}, d.sleep(ctx, seconds(a.Duration))
	}
	return v1.ActionResult{}, fmt.Errorf("%w: %s", v1.ErrUnknownAction, a.Action)
}

func (d *dispatcher) screenshot(ctx context.Context, region *v1.Region) (v1.ActionResult, error) {
	b64, err := d.shots.take(ctx, d.drv.capture, region)
	if err != nil {
		return v1.ActionResult{}, err
	}
	return v1.ActionResult{Base64: b64}, nil
}

// scroll moves once, then issues one wheel click per unit so a partial
// failure stops at the failing unit.
func (d *dispatcher) scroll(ctx context.Context, a v1.Action) error {
	if err := d.drv.move(ctx, d.point(a.Coordinate)); err != nil {
		return err
	}
	button := wheelButtons[a.ScrollDirection]
	clicks := a.ScrollClicks()
	for i := 0; i < clicks; i++ {
		if err := d.drv.wheel(ctx, button); err != nil {
			return fmt.Errorf("scroll %s click %d/%d: %w", a.ScrollDirection, i+1, clicks, err)
		}
	}
	return nil
}

func (d *dispatcher) holdKey(ctx context.Context, a v1.Action) error {
	if err := d.drv.keyDown(ctx, a.Text); err != nil {
		return err
	}
	sleepErr := d.sleep(ctx, seconds(a.Duration))
	// The key is released even if the wait was cancelled.
	upErr := d.drv.keyUp(context.WithoutCancel(ctx), a.Text)
	if sleepErr != nil {
		return sleepErr
	}
	return upErr
}

func (d *dispatcher) point(p *v1.Point) v1.Point {
	return d.scale.ToScreen(*p)
}

func (d *dispatcher) optionalPoint(p *v1.Point) *v1.Point {
	if p == nil {
		return nil
	}
	sp := d.scale.ToScreen(*p)
	return &sp
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
