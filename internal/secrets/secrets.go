// Package secrets fetches database credentials from Google Secret Manager
// and assembles the Cloud SQL connection string.
package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Client wraps the Secret Manager API client.
type Client struct {
	sm *secretmanager.Client
}

// NewClient creates a Secret Manager client using application default
// credentials.
func NewClient(ctx context.Context) (*Client, error) {
	sm, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	return &Client{sm: sm}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.sm.Close()
}

// Access returns the payload of one secret version. The version can be a
// number ("5") or an alias ("latest").
func (c *Client) Access(ctx context.Context, project, secretID, version string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, secretID, version)
	resp, err := c.sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

// DSN builds a pgx connection string for a Cloud SQL instance reached over
// its unix socket (<socket_dir>/<instance_connection_name>).
func DSN(user, password, dbname, socketDir, instance string) string {
	return fmt.Sprintf("user=%s password=%s dbname=%s host=%s/%s",
		user, password, dbname, socketDir, instance)
}
