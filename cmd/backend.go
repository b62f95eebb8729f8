package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/asukhov/nsgctl/internal/azauth"
	"github.com/asukhov/nsgctl/internal/azure"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/nsg"
)

// Backend names accepted by --backend.
const (
	backendSDK = "sdk"
	backendCLI = "cli"
)

// cloudSession authenticates and picks the subscription of a run.
type cloudSession interface {
	EnsureAuthenticated(ctx context.Context) error
	SelectSubscription(ctx context.Context, idOrName string) (azauth.Subscription, error)
}

// backend pairs a session with the gateway that talks to the selected
// subscription.
type backend interface {
	Session() cloudSession
	Gateway(sub azauth.Subscription) (nsg.Gateway, error)
}

// newBackend is replaced in tests.
var newBackend = defaultBackend

func defaultBackend(name string, opts azauth.Options) (backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", backendSDK:
		return &sdkBackend{session: azauth.NewSDKSession(opts)}, nil
	case backendCLI:
		return &cliBackend{session: azauth.NewCLISession()}, nil
	}
	return nil, exitcode.UsageError(fmt.Errorf("invalid backend %q (allowed: %s, %s)", name, backendSDK, backendCLI))
}

type sdkBackend struct {
	session *azauth.SDKSession
}

func (b *sdkBackend) Session() cloudSession { return b.session }

func (b *sdkBackend) Gateway(sub azauth.Subscription) (nsg.Gateway, error) {
	cred := b.session.Credential()
	if cred == nil {
		return nil, azauth.ErrNotAuthenticated
	}
	return azure.NewSDKGateway(sub.ID, cred.TokenCredential, nil)
}

type cliBackend struct {
	session *azauth.CLISession
}

func (b *cliBackend) Session() cloudSession { return b.session }

func (b *cliBackend) Gateway(sub azauth.Subscription) (nsg.Gateway, error) {
	return azure.NewCLIGateway(azure.NewAzCLI(), sub.ID), nil
}
