package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"winivox/internal/api"
	"winivox/internal/config"
	"winivox/internal/logging"
	"winivox/internal/objectstore"
	"winivox/internal/submissions"
	"winivox/internal/workqueue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// runtime bundles the long-lived handles a command needs.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *submissions.Store
	queue   workqueue.Queue
	objects objectstore.Store
	service *api.Service
}

// openRuntime opens the store, queue and object store. Service commands log
// to stdout and the log file; one-shot commands only surface warnings on
// stderr so their output stays readable.
func (c *commandContext) openRuntime(ctx context.Context, service bool) (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var logger *slog.Logger
	if service {
		logger, err = logging.NewFromConfig(cfg)
	} else {
		logger, err = logging.New(logging.Options{
			Level:            "warn",
			Format:           cfg.Logging.Format,
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.store, err = submissions.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open submission store: %w", err)
	}
	rt.queue, err = workqueue.New(cfg, rt.store.DB())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open work queue: %w", err)
	}
	rt.objects, err = objectstore.New(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open object store: %w", err)
	}
	rt.service, err = api.NewService(api.ServiceOptions{
		Store:      rt.store,
		Queue:      rt.queue,
		Objects:    rt.objects,
		Storage:    cfg.Storage,
		PresignTTL: cfg.PresignTTL(),
		Logger:     logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if closer, ok := r.objects.(io.Closer); ok {
		_ = closer.Close()
	}
	if r.queue != nil {
		_ = r.queue.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(*runtime) error) error {
	rt, err := c.openRuntime(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
