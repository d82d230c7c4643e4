package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "agentcanvas-sync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"sweep", "user"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlagDefaults(t *testing.T) {
	t.Setenv("AGENTCANVAS_MONGO_DATABASE", "canvas_test")
	t.Setenv("AGENTCANVAS_SYNC_CONCURRENCY", "9")
	t.Setenv("AGENTCANVAS_SYNC_MAX_PAGES", "not-a-number")

	cmd := NewRootCommand()
	f := cmd.PersistentFlags()

	assert.Equal(t, "canvas_test", f.Lookup("database").DefValue)
	assert.Equal(t, "9", f.Lookup("concurrency").DefValue)
	assert.Equal(t, "1000", f.Lookup("max-pages").DefValue, "unparseable env value falls back")
	assert.Equal(t, "v", f.Lookup("verbose").Shorthand)
}

func TestUserCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	userCmd, _, err := cmd.Find([]string{"user"})
	require.NoError(t, err)

	forget := userCmd.Flags().Lookup("forget")
	require.NotNil(t, forget)
	assert.Equal(t, "false", forget.DefValue)
}

func TestUserCommand_RequiresOneArg(t *testing.T) {
	t.Setenv("AGENTCANVAS_WORKOS_API_KEY", "sk_test")
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"user"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestMissingAPIKey_FailsBeforeConnecting(t *testing.T) {
	t.Setenv("AGENTCANVAS_WORKOS_API_KEY", "")
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"sweep", "--mongo-uri", "mongodb://unreachable.invalid:1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "workos-api-key")
}

func TestValidate(t *testing.T) {
	valid := func() RootOptions {
		return RootOptions{
			MongoURI:    "mongodb://localhost:27017",
			Database:    "agentcanvas",
			APIKey:      "sk_test",
			LogMode:     "all",
			Concurrency: 4,
			Timeout:     1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*RootOptions)
		ok     bool
	}{
		{"valid", func(*RootOptions) {}, true},
		{"no uri", func(o *RootOptions) { o.MongoURI = "" }, false},
		{"no database", func(o *RootOptions) { o.Database = "" }, false},
		{"bad log mode", func(o *RootOptions) { o.LogMode = "verbose" }, false},
		{"zero concurrency", func(o *RootOptions) { o.Concurrency = 0 }, false},
		{"zero timeout", func(o *RootOptions) { o.Timeout = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid()
			tt.mutate(&o)
			err := o.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}

func TestAppConfig(t *testing.T) {
	o := RootOptions{
		MongoURI:          "mongodb://db",
		Database:          "canvas",
		APIKey:            "sk_test",
		WorkOSBaseURL:     "http://idp",
		DefaultRole:       "viewer",
		Concurrency:       3,
		MaxPages:          7,
		RequestsPerSecond: 2,
		LogMode:           "db",
	}
	cfg := o.appConfig()
	assert.Equal(t, "canvas", cfg.MongoDatabase)
	assert.Equal(t, "viewer", cfg.DefaultRole)
	assert.Equal(t, 3, cfg.SyncConcurrency)
	assert.Equal(t, 7, cfg.SyncMaxPages)
	assert.False(t, cfg.SyncEnabled)
	assert.Zero(t, cfg.ManualSyncLimit)
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	err := writeResult(&buf, models.SyncResult{Added: 2, Removed: 1})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.EqualValues(t, 2, got["added"])
	assert.EqualValues(t, 1, got["removed"])
	assert.Equal(t, []any{}, got["errors"])
}

func TestWriteResult_ErrorsExitFailure(t *testing.T) {
	var buf bytes.Buffer
	err := writeResult(&buf, models.SyncResult{Errors: []string{"upsert org_1: boom"}})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "org_1")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", errors.New("y"))))
}
