package roddriver

import (
	"context"
	"testing"

	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/stretchr/testify/assert"

	"github.com/entrhq/webapp/pkg/engine"
)

func TestNewProcess(t *testing.T) {
	l := newProcess(engine.LaunchOptions{
		Headless: true,
		Args:     []string{"--lang=en-US", "--mute-audio", "--"},
		Viewport: engine.Viewport{Width: 1280, Height: 720},
	})

	assert.True(t, l.Has(flags.Headless))
	assert.Equal(t, "en-US", l.Get(flags.Flag("lang")))
	assert.True(t, l.Has(flags.Flag("mute-audio")))
	assert.Equal(t, "1280,720", l.Get(flags.Flag("window-size")))
}

func TestNewProcess_Headed(t *testing.T) {
	l := newProcess(engine.LaunchOptions{Headless: false})
	assert.False(t, l.Has(flags.Headless))
}

func TestLaunch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLauncher().Launch(ctx, engine.LaunchOptions{Headless: true})
	assert.ErrorIs(t, err, engine.ErrEngine)
	assert.ErrorIs(t, err, context.Canceled)
}
