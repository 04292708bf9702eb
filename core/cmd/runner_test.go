package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/reservebot/core/config"
	coretelegram "github.com/m3rciful/reservebot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	closed  bool
	started bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { a.started = true; return nil },
	}, nil
}

func (a *fakeApp) Close() error { a.closed = true; return nil }

func TestRunLifecycle(t *testing.T) {
	t.Setenv("RESERVEBOT_TEST_CONFIG", "from-env.yaml")
	app := &fakeApp{}
	var loaded string
	loggerFlushed := false

	err := Run(Options{
		ConfigEnvVar:      "RESERVEBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { loggerFlushed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if loaded != "from-env.yaml" {
		t.Fatalf("loaded %q", loaded)
	}
	if !app.started || !app.closed || !loggerFlushed {
		t.Fatalf("started=%v closed=%v flushed=%v", app.started, app.closed, loggerFlushed)
	}
}

func TestRunErrors(t *testing.T) {
	load := func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil }
	tests := []struct {
		name string
		opts Options
	}{
		{"no loader", Options{}},
		{"no bootstrap", Options{LoadConfig: load}},
		{"load fails", Options{
			DefaultConfigPath: "x.yaml",
			LoadConfig:        func(string) (ConfigCarrier, error) { return nil, errors.New("missing") },
			Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return &fakeApp{}, nil },
		}},
		{"missing core", Options{
			DefaultConfigPath: "x.yaml",
			LoadConfig:        func(string) (ConfigCarrier, error) { return carrier{}, nil },
			Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return &fakeApp{}, nil },
		}},
		{"bootstrap fails", Options{
			DefaultConfigPath: "x.yaml",
			LoadConfig:        load,
			Bootstrap:         func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("db down") },
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", "")
			if err := Run(tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
