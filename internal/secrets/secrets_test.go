package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockManagerAPI struct {
	values map[string]string
	err    error
}

func (m *mockManagerAPI) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no such secret"}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestPassword(t *testing.T) {
	r := &Resolver{api: &mockManagerAPI{values: map[string]string{
		"plain":   "hunter2",
		"json":    `{"username":"svc","password":"s3cret"}`,
		"nofield": `{"username":"svc"}`,
		"broken":  `{"password":`,
	}}}
	ctx := context.Background()

	pwd, err := r.Password(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pwd)

	pwd, err = r.Password(ctx, "json")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pwd)

	_, err = r.Password(ctx, "nofield")
	assert.ErrorContains(t, err, `no "password" field`)

	_, err = r.Password(ctx, "broken")
	assert.ErrorContains(t, err, "not a flat JSON object")

	_, err = r.Password(ctx, "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestPasswordAPIError(t *testing.T) {
	r := &Resolver{api: &mockManagerAPI{err: errors.New("throttled")}}

	_, err := r.Password(context.Background(), "any")
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}
