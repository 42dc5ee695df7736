// Package secrets reads the portal password from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/bcgov/ago-group-sync/tools"
)

var ErrSecretNotFound = errors.New("secret not found")

// passwordKey is the field read when the secret string is a JSON object.
const passwordKey = "password"

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Resolver struct {
	api ManagerAPI
}

// NewResolver builds a resolver from the default AWS credential chain.
func NewResolver(ctx context.Context) (*Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Resolver{api: secretsmanager.NewFromConfig(cfg)}, nil
}

// Password returns the secret's value. A JSON object secret yields its
// "password" field; anything else is used verbatim.
func (r *Resolver) Password(ctx context.Context, secretID string) (string, error) {
	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, secretID)
		}
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}

	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}

	if strings.HasPrefix(strings.TrimSpace(value), "{") {
		var fields map[string]string
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secret %s is not a flat JSON object: %w", secretID, err)
		}
		pwd, ok := fields[passwordKey]
		if !ok || pwd == "" {
			return "", fmt.Errorf("secret %s has no %q field", secretID, passwordKey)
		}
		value = pwd
	}

	tools.Log.WithField("secret", secretID).Debug("Resolved portal password from Secrets Manager")
	return value, nil
}
