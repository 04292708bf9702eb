package app

import (
	"context"
	"testing"

	"github.com/m3rciful/reservebot/bot/config"
	coretelegram "github.com/m3rciful/reservebot/core/telegram"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.State.Backend = config.BackendMemory
	cfg.Telegram.RunMode = "longpoll"
	return cfg
}

func TestBootstrapMemoryBackend(t *testing.T) {
	a, err := Bootstrap(memoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.infra.DB != nil {
		t.Fatal("memory backend must not open a database")
	}
	if a.sweeper == nil {
		t.Fatal("sweeper not configured")
	}

	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatal(err)
	}
	// four commands, text and callback
	if len(opts.Routes) != 6 {
		t.Fatalf("routes = %d, want 6", len(opts.Routes))
	}
	if got := opts.Registry.ListCallbacks(); len(got) != 3 {
		t.Fatalf("callbacks = %v", got)
	}
	if _, _, ok := opts.Registry.LookupCommand("/today"); !ok {
		t.Fatal("/today not registered")
	}

	if err := opts.OnStart(context.Background(), coretelegram.Runtime{}); err != nil {
		t.Fatal(err)
	}
	if err := opts.OnStop(context.Background(), coretelegram.Runtime{}); err != nil {
		t.Fatal(err)
	}
}

func TestBootstrapWithoutSweeper(t *testing.T) {
	cfg := memoryConfig()
	cfg.State.SweepSchedule = ""
	a, err := Bootstrap(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.sweeper != nil {
		t.Fatal("sweeper must be off without a schedule")
	}
}

func TestBootstrapInvalidStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Timezone = "Nowhere/Town"
	if _, err := Bootstrap(cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestBootstrapNilConfig(t *testing.T) {
	if _, err := Bootstrap(nil); err == nil {
		t.Fatal("expected error")
	}
}
