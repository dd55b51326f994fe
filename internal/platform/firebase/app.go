// Package firebase initialises the Firebase Admin app shared by the Firestore
// store and the ID-token verifier.
package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
}

// App wraps a Firebase Admin app.
type App struct {
	app    *fb.App
	logger zerolog.Logger
}

// NewApp initialises Firebase with a service-account file when one is given,
// and with application default credentials otherwise.
func NewApp(ctx context.Context, cfg Config, logger zerolog.Logger) (*App, error) {
	logger = logger.With().Str("component", "firebase").Logger()

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		logger.Info().Msg("FIREBASE_CREDENTIALS_FILE not set, using application default credentials")
	}

	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("firebase app initialized")
	return &App{app: app, logger: logger}, nil
}

// Firestore returns a new Firestore client. The caller closes it.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return client, nil
}

// Auth returns the Firebase Auth client used to verify ID tokens.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := a.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth client: %w", err)
	}
	return client, nil
}
