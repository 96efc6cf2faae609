package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "messages", cfg.Store.Collection)
	assert.Equal(t, 20*time.Second, cfg.Consumer.WaitTime)
	assert.Equal(t, time.Second, cfg.Consumer.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Consumer.ProcessTimeout)
	assert.Equal(t, 1, cfg.Consumer.InsertAttempts)
	assert.Equal(t, 3, cfg.Consumer.AckAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, `
queue:
  url: https://sqs.eu-west-1.amazonaws.com/1/notifications
  release_on_failure: true
  fail_visibility_timeout: 15s
store:
  driver: postgres
  uri: postgres://localhost/notify
consumer:
  poll_interval: 250ms
  insert_attempts: 3
  ack_attempts: 5
log:
  level: debug
`)
	t.Setenv("NOTIFY_STORE_TABLE", "inbox")
	t.Setenv("NOTIFY_CONSUMER_WAIT_TIME", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://sqs.eu-west-1.amazonaws.com/1/notifications", cfg.Queue.URL)
	assert.True(t, cfg.Queue.ReleaseOnFailure)
	assert.Equal(t, 15*time.Second, cfg.Queue.FailVisibilityTimeout)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "inbox", cfg.Store.Table)
	assert.Equal(t, 250*time.Millisecond, cfg.Consumer.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Consumer.WaitTime)
	assert.Equal(t, 3, cfg.Consumer.InsertAttempts)
	assert.Equal(t, 5, cfg.Consumer.AckAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrConfigRead)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Queue.URL = "https://sqs.local/q"
	cfg.Store.URI = "mongodb://localhost:27017"
	cfg.Store.Database = "notifications"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())

	cases := map[string]func(*Config){
		"no queue url":      func(c *Config) { c.Queue.URL = "" },
		"mongo without db":  func(c *Config) { c.Store.Database = "" },
		"unknown driver":    func(c *Config) { c.Store.Driver = "cassandra" },
		"s3 without bucket": func(c *Config) { c.Store.Driver = DriverS3 },
		"bad compression":   func(c *Config) { c.Store.Driver = DriverS3; c.Store.Bucket = "b"; c.Store.Compression = "lz4" },
		"wait too long":     func(c *Config) { c.Consumer.WaitTime = 21 * time.Second },
		"negative poll":     func(c *Config) { c.Consumer.PollInterval = -time.Second },
		"zero timeout":      func(c *Config) { c.Consumer.ProcessTimeout = 0 },
		"zero attempts":     func(c *Config) { c.Consumer.InsertAttempts = 0 },
		"zero ack attempts": func(c *Config) { c.Consumer.AckAttempts = 0 },
		"negative fail vis": func(c *Config) { c.Queue.FailVisibilityTimeout = -time.Second },
		"postgres no uri":   func(c *Config) { c.Store.Driver = DriverPostgres; c.Store.URI = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(t)
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfigValidation)
		})
	}
}

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	args := m.Called(aws.ToString(in.Name), aws.ToBool(in.WithDecryption))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ssm.GetParameterOutput), args.Error(1)
}

func paramOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}
}

func TestResolveParameters(t *testing.T) {
	m := &mockSSM{}
	m.On("GetParameter", "/notify/sqs-url", false).Return(paramOut("https://sqs.local/resolved"), nil).Once()
	m.On("GetParameter", "/notify/db-conn", true).Return(paramOut("mongodb://secret@db"), nil).Once()
	m.On("GetParameter", "/notify/db-name", true).Return(paramOut("notifications"), nil).Once()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.ParameterStore = ParameterStoreConfig{
		QueueURLPath:      "/notify/sqs-url",
		StoreURIPath:      "/notify/db-conn",
		StoreDatabasePath: "/notify/db-name",
	}
	require.True(t, cfg.NeedsParameters())

	require.NoError(t, ResolveParameters(context.Background(), m, &cfg))
	require.NoError(t, cfg.Validate())
	m.AssertExpectations(t)

	assert.Equal(t, "https://sqs.local/resolved", cfg.Queue.URL)
	assert.Equal(t, "mongodb://secret@db", cfg.Store.URI)
	assert.Equal(t, "notifications", cfg.Store.Database)
}

func TestResolveParameters_SkipsUnsetPaths(t *testing.T) {
	m := &mockSSM{}
	m.On("GetParameter", "/notify/sqs-url", false).Return(paramOut("https://sqs.local/q"), nil).Once()

	cfg := Config{ParameterStore: ParameterStoreConfig{QueueURLPath: "/notify/sqs-url"}}
	cfg.Store.URI = "kept"

	require.NoError(t, ResolveParameters(context.Background(), m, &cfg))
	m.AssertExpectations(t)
	assert.Equal(t, "kept", cfg.Store.URI)
}

func TestResolveParameters_Errors(t *testing.T) {
	boom := errors.New("access denied")
	m := &mockSSM{}
	m.On("GetParameter", "/denied", false).Return(nil, boom)
	m.On("GetParameter", "/empty", true).Return(&ssm.GetParameterOutput{}, nil)

	cfg := Config{ParameterStore: ParameterStoreConfig{QueueURLPath: "/denied"}}
	assert.ErrorIs(t, ResolveParameters(context.Background(), m, &cfg), boom)

	cfg = Config{ParameterStore: ParameterStoreConfig{StoreURIPath: "/empty"}}
	assert.Error(t, ResolveParameters(context.Background(), m, &cfg))
}

func TestNeedsParameters(t *testing.T) {
	assert.False(t, Config{}.NeedsParameters())
}
