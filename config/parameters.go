package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NeedsParameters reports whether ResolveParameters has any work to do, so
// callers can skip building an SSM client.
func (c Config) NeedsParameters() bool {
	return c.ParameterStore.enabled()
}

// ResolveParameters replaces settings whose parameter path is configured
// with the parameter's value. Store secrets are fetched with decryption.
func ResolveParameters(ctx context.Context, client ssmAPI, cfg *Config) error {
	ps := cfg.ParameterStore
	lookups := []struct {
		path    string
		decrypt bool
		dst     *string
	}{
		{ps.QueueURLPath, false, &cfg.Queue.URL},
		{ps.StoreURIPath, true, &cfg.Store.URI},
		{ps.StoreDatabasePath, true, &cfg.Store.Database},
	}

	for _, l := range lookups {
		if l.path == "" {
			continue
		}
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(l.path),
			WithDecryption: aws.Bool(l.decrypt),
		})
		if err != nil {
			return fmt.Errorf("get parameter %s: %w", l.path, err)
		}
		if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
			return fmt.Errorf("parameter %s is empty", l.path)
		}
		*l.dst = aws.ToString(out.Parameter.Value)
	}
	return nil
}
