package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/sakif/game-market/internal/model"
)

// idTokenVerifier is the one method we need from *fbauth.Client.
// Tests substitute a fake so no Google credentials are required.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier accepts Firebase ID tokens as "Authorization: Bearer"
// credentials, for API clients that can't go through the cookie flow.
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier initialises the Admin SDK from a service-account file.
func NewFirebaseVerifier(ctx context.Context, credentialsPath string) (*FirebaseVerifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("auth: initialising firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: creating firebase auth client: %w", err)
	}

	return &FirebaseVerifier{client: client}, nil
}

// Verify checks the token signature, audience and expiry with Google and
// returns the caller's identity claims.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*model.Identity, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying firebase ID token: %w", err)
	}
	if tok.UID == "" {
		return nil, fmt.Errorf("auth: firebase token has no uid")
	}

	first, last := splitName(claimString(tok.Claims, "name"))
	id := model.Identity{
		Subject:         "firebase:" + tok.UID,
		Email:           claimString(tok.Claims, "email"),
		FirstName:       first,
		LastName:        last,
		ProfileImageURL: claimString(tok.Claims, "picture"),
	}
	return &id, nil
}

func claimString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
