package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerBackend maps each locker onto a name prefix within AWS
// Secrets Manager, one shared client cloned by reference into every
// per-request store, mirroring blob.S3Backend's prefixing shape.
type SecretsManagerBackend struct {
	client *secretsmanager.Client
}

// NewSecretsManagerBackend returns a backend over the given Secrets
// Manager client.
func NewSecretsManagerBackend(client *secretsmanager.Client) *SecretsManagerBackend {
	return &SecretsManagerBackend{client: client}
}

// Open implements Backend.
func (b *SecretsManagerBackend) Open(ctx context.Context, lockerID string) (Locker, error) {
	return &secretsManagerLocker{client: b.client, prefix: lockerID + "/"}, nil
}

type secretsManagerLocker struct {
	client *secretsmanager.Client
	prefix string
}

func (l *secretsManagerLocker) name(secretID string) string {
	return l.prefix + secretID
}

func (l *secretsManagerLocker) Get(ctx context.Context, secretID string) ([]byte, bool, error) {
	out, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(l.name(secretID)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("vault: get %q: %w", secretID, err)
	}
	if out.SecretBinary != nil {
		return out.SecretBinary, true, nil
	}
	return []byte(aws.ToString(out.SecretString)), true, nil
}

func (l *secretsManagerLocker) Set(ctx context.Context, secretID string, value []byte) error {
	name := l.name(secretID)
	_, err := l.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretBinary: value,
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("vault: set %q: %w", secretID, err)
	}
	_, err = l.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretBinary: value,
	})
	if err != nil {
		return fmt.Errorf("vault: creating secret %q: %w", secretID, err)
	}
	return nil
}

func (l *secretsManagerLocker) Delete(ctx context.Context, secretID string) error {
	_, err := l.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(l.name(secretID)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("vault: delete %q: %w", secretID, err)
	}
	return nil
}

func (l *secretsManagerLocker) Exists(ctx context.Context, secretID string) (bool, error) {
	_, found, err := l.Get(ctx, secretID)
	return found, err
}

func (l *secretsManagerLocker) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var nextToken *string
	for {
		out, err := l.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("vault: list secrets: %w", err)
		}
		for _, s := range out.SecretList {
			name := aws.ToString(s.Name)
			if len(name) > len(l.prefix) && name[:len(l.prefix)] == l.prefix {
				ids = append(ids, name[len(l.prefix):])
			}
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return ids, nil
}
