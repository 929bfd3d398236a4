package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecrets fills APISecret from SSM Parameter Store when SHOPIFY_API_SECRET_PARAM is set.
func ResolveSecrets(ctx context.Context, cfg *Config, client SSMAPI) error {
	if cfg.APISecretParam == "" {
		return nil
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.APISecretParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("ssm get %s: %w", cfg.APISecretParam, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return errors.New("SHOPIFY_API_SECRET_PARAM resolved to an empty value")
	}

	cfg.APISecret = aws.ToString(out.Parameter.Value)
	return nil
}
