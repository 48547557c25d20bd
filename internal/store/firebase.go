package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Firebase bundles the clients of one Firebase project.
type Firebase struct {
	App       *firebase.App
	Firestore *firestore.Client
	Auth      *auth.Client
}

// FirebaseOptions selects the project and credentials. With neither
// CredentialsFile nor CredentialsJSON set, application default credentials
// are used.
type FirebaseOptions struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

// ClientOptions converts o to google API client options.
func (o FirebaseOptions) ClientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case o.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	case o.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(o.CredentialsJSON)))
	}
	return opts
}

// NewFirebase initializes the app and the requested clients.
func NewFirebase(ctx context.Context, o FirebaseOptions, withFirestore, withAuth bool) (*Firebase, error) {
	var conf *firebase.Config
	if o.ProjectID != "" {
		conf = &firebase.Config{ProjectID: o.ProjectID}
	}
	app, err := firebase.NewApp(ctx, conf, o.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	fb := &Firebase{App: app}
	if withFirestore {
		if fb.Firestore, err = app.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
	}
	if withAuth {
		if fb.Auth, err = app.Auth(ctx); err != nil {
			fb.Close()
			return nil, fmt.Errorf("firebase auth client: %w", err)
		}
	}
	return fb, nil
}

// Close releases the Firestore connection.
func (f *Firebase) Close() {
	if f != nil && f.Firestore != nil {
		_ = f.Firestore.Close()
	}
}
