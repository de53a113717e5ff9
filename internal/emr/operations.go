// internal/emr/operations.go
package emr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"github.com/xkilldash9x/vision-assistant/internal/workflow"
	"go.uber.org/zap"
)

// clickInterval separates the clicks of a navigation double click.
const clickInterval = 100 * time.Millisecond

func (a *Assistant) runOperation(ctx context.Context, op workflow.Operation, emit Emitter) error {
	switch o := op.(type) {
	case workflow.OpInitializeTask:
		return a.InitializeTask(ctx, o.TaskName)
	case workflow.OpChangePageInfo:
		return a.changePageInfo(o.TargetPage)
	case workflow.OpChangePageWithinTask:
		return a.ChangePageWithinTask(ctx, o.TargetPage)
	case workflow.OpChangeToSubPage:
		return a.ChangeToSubPage(ctx, o.TargetButton)
	case workflow.OpToNormalScale:
		return a.ToNormalScale(ctx)
	case workflow.OpBackToTop:
		return a.BackToTop(ctx)
	case workflow.OpCheckLoading:
		return a.CheckLoading(ctx, CheckLoadingRequest{
			Template:     o.TemplateName,
			Attempts:     o.Attempts,
			CloseWindow:  o.CloseWindow,
			SelectResult: o.SelectResult,
		})
	case workflow.OpWait:
		return a.input.Pause(ctx, o.Seconds.Duration())
	case workflow.OpExecutePage:
		return a.ExecutePage(ctx, emit)
	}
	return ConfigurationError(op.Method(), workflow.ErrUnknownOperation)
}

// locateGeneral aligns a template from general/images against the live
// screen.
func (a *Assistant) locateGeneral(ctx context.Context, name string) (vision.Match, error) {
	layout := a.Layout()
	if layout == nil {
		return vision.Match{}, ConfigurationError(name, errors.New("no EMR system loaded"))
	}
	path := layout.GeneralTemplate(name)
	if _, err := os.Stat(path); err != nil {
		return vision.Match{}, TemplateError(name, fmt.Errorf("template image not found: %s", path))
	}
	m, err := a.aligner.Align(ctx, vision.AlignRequest{TemplatePath: path})
	if err != nil {
		a.logger.Debug("Template not located", zap.String("template", name), zap.Error(err))
		return vision.Match{}, err
	}
	return m, nil
}

func (a *Assistant) clickMatch(ctx context.Context, m vision.Match, clicks int) error {
	if err := a.input.MoveTo(ctx, m.X, m.Y, true); err != nil {
		return err
	}
	return a.input.Click(ctx, humanoid.ButtonLeft, clicks, clickInterval)
}

// InitializeTask navigates from the home page along the task's route,
// waiting for each destination to finish loading.
func (a *Assistant) InitializeTask(ctx context.Context, task string) error {
	wrap := func(err error) error {
		return ActionError("initialize_task", fmt.Errorf("error assigning task: %w", err))
	}
	layout := a.Layout()
	if layout == nil {
		return ConfigurationError(task, errors.New("no EMR system loaded"))
	}
	route, err := layout.Config.Route(task)
	if err != nil {
		return wrap(err)
	}

	if err := a.BackToTop(ctx); err != nil {
		return wrap(err)
	}
	if err := a.ToNormalScale(ctx); err != nil {
		return wrap(err)
	}

	home, err := a.locateGeneral(ctx, "homepage")
	if err != nil {
		return wrap(fmt.Errorf("failed for assigning new task, step %s: %w", task, err))
	}
	if err := a.clickMatch(ctx, home, 1); err != nil {
		return wrap(err)
	}
	if err := a.CheckLoading(ctx, CheckLoadingRequest{Template: "load_homepage"}); err != nil {
		return wrap(err)
	}

	for _, img := range route {
		m, err := a.locateGeneral(ctx, img)
		if err != nil {
			return wrap(fmt.Errorf("failed for assigning new task, step %s: %w", img, err))
		}
		if err := a.clickMatch(ctx, m, 1); err != nil {
			return wrap(err)
		}
		if err := a.CheckLoading(ctx, CheckLoadingRequest{Template: "load_" + img}); err != nil {
			return wrap(err)
		}
	}
	return nil
}

// ChangePageWithinTask double clicks the page's tab and selects the page.
func (a *Assistant) ChangePageWithinTask(ctx context.Context, page string) error {
	m, err := a.locateGeneral(ctx, page)
	if err != nil {
		return ActionError("change_page_within_task", fmt.Errorf("error changing page: %w", err))
	}
	if err := a.clickMatch(ctx, m, 2); err != nil {
		return ActionError("change_page_within_task", fmt.Errorf("error changing page: %w", err))
	}
	return a.changePageInfo(page)
}

// ChangeToSubPage double clicks a sub page button. A button that is not on
// screen is skipped.
func (a *Assistant) ChangeToSubPage(ctx context.Context, button string) error {
	m, err := a.locateGeneral(ctx, button)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Sub page button not found, staying on current page", zap.String("button", button), zap.Error(err))
		return nil
	}
	if err := a.clickMatch(ctx, m, 2); err != nil {
		return ActionError("change_to_sub_page", fmt.Errorf("error changing to sub page: %w", err))
	}
	return nil
}

// ToNormalScale resets the browser zoom to 100%.
func (a *Assistant) ToNormalScale(ctx context.Context) error {
	m, err := a.locateGeneral(ctx, "homepage")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return EMRError("to_normal_scale", errors.New("failed to find the homepage button"))
	}
	fail := func(err error) error {
		return EMRError("to_normal_scale", fmt.Errorf("failed to zoom 100%% scale in the browser: %w", err))
	}
	if err := a.clickMatch(ctx, m, 1); err != nil {
		return fail(err)
	}
	size := a.aligner.ScreenSize()
	if err := a.input.MoveTo(ctx, size.X/2, size.Y/2, true); err != nil {
		return fail(err)
	}
	if err := a.input.Hotkey(ctx, []string{a.input.Modifier(), "0"}, 1, 0); err != nil {
		return fail(err)
	}
	return nil
}

// CheckLoading implements Host. It waits for a loaded marker template,
// retrying a bounded number of times. On failure the window is optionally
// closed.
func (a *Assistant) CheckLoading(ctx context.Context, req CheckLoadingRequest) error {
	cfg := a.cfg.CheckLoading
	attempts := cfg.Attempts
	if req.Attempts > 0 {
		attempts = req.Attempts
	}
	if attempts <= 0 {
		attempts = 1
	}

	if err := a.input.Pause(ctx, cfg.InitialDelay); err != nil {
		return err
	}

	var match vision.Match
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryDelay), uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		m, err := a.locateGeneral(ctx, req.Template)
		if err != nil {
			if IsKind(err, KindTemplate) || IsKind(err, KindConfiguration) {
				return backoff.Permanent(err)
			}
			return err
		}
		match = m
		return nil
	}, b, func(err error, next time.Duration) {
		a.logger.Debug("Page not loaded yet", zap.String("template", req.Template), zap.Duration("retry_in", next))
	})

	if err == nil {
		if req.SelectResult {
			if err := a.clickMatch(ctx, match, 1); err != nil {
				return ActionError(req.Template, err)
			}
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.logger.Warn("Page loading failed", zap.String("template", req.Template), zap.Int("attempts", attempts), zap.Error(err))
	if req.CloseWindow {
		if herr := a.input.Hotkey(ctx, []string{a.input.Modifier(), "w"}, 1, 0); herr != nil {
			return ActionError(req.Template, fmt.Errorf("page loading failed, closing window failed: %w", herr))
		}
	}
	return ActionError(req.Template, errors.New("page loading failed"))
}
