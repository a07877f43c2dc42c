package firebase

import (
	"context"
	"fmt"
	"os"

	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Credentials picks the service account: inline JSON wins over the file
// path. With neither available it falls back to application default
// credentials.
func Credentials(serviceAccountJSON, serviceAccountPath string) []option.ClientOption {
	if serviceAccountJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(serviceAccountJSON))}
	}
	if serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); err == nil {
			return []option.ClientOption{option.WithCredentialsFile(serviceAccountPath)}
		}
	}
	return nil
}

func NewApp(ctx context.Context, projectID string, opts ...option.ClientOption) (*fbapp.App, error) {
	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase: %w", err)
	}
	return app, nil
}
