// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"

	"github.com/aiku/matrix-autoinvite-bot/pkg/config"
)

// DeviceDisplayName is used for devices created by password login.
const DeviceDisplayName = "Auto Invite Bot"

// Login returns a session for the account. An access token is used as-is
// after checking it with /whoami; otherwise the password is exchanged for a
// new access token. Every failure is an *AuthError.
func Login(ctx context.Context, acc config.Account, log zerolog.Logger) (*MatrixSession, error) {
	if !acc.HasCredentials() {
		return nil, &AuthError{UserID: acc.UserID, Err: ErrNoCredentials}
	}
	client, err := mautrix.NewClient(acc.Address, acc.UserID, acc.AccessToken)
	if err != nil {
		return nil, &AuthError{UserID: acc.UserID, Err: fmt.Errorf("failed to create client: %w", err)}
	}
	client.Log = log.With().Str("component", "mautrix").Logger()

	if acc.AccessToken != "" {
		whoami, err := client.Whoami(ctx)
		if err != nil {
			return nil, &AuthError{UserID: acc.UserID, Err: fmt.Errorf("failed to verify access token: %w", err)}
		}
		if whoami.UserID != acc.UserID {
			return nil, &AuthError{UserID: acc.UserID, Err: fmt.Errorf("access token belongs to %s", whoami.UserID)}
		}
		log.Info().Str("device_id", string(whoami.DeviceID)).Msg("Using access token")
		return NewMatrixSession(client, log), nil
	}

	resp, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: acc.UserID.String(),
		},
		Password:                 acc.Password,
		InitialDeviceDisplayName: DeviceDisplayName,
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, &AuthError{UserID: acc.UserID, Err: fmt.Errorf("failed to log in with password: %w", err)}
	}
	log.Info().Str("device_id", string(resp.DeviceID)).Msg("Logged in with password")
	return NewMatrixSession(client, log), nil
}
