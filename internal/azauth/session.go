package azauth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
)

// Subscription is the subscription a run targets.
type Subscription struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenantId,omitempty"`
}

// ErrNotAuthenticated is returned by SelectSubscription before
// EnsureAuthenticated succeeded.
var ErrNotAuthenticated = errors.New("not authenticated")

// SubscriptionLister lists the subscriptions a credential can see.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
}

// SDKSession authenticates with azidentity and resolves subscriptions
// through ARM.
type SDKSession struct {
	opts      Options
	cred      *Credential
	login     func(context.Context, Options) (*Credential, error)
	newLister func(azcore.TokenCredential) (SubscriptionLister, error)
}

// NewSDKSession returns a session using the default credential chain.
func NewSDKSession(opts Options) *SDKSession {
	return &SDKSession{opts: opts, login: Login, newLister: newARMLister}
}

// EnsureAuthenticated resolves a credential once. The tenant is taken from
// Options, then AZURE_TENANT_ID, then the active az CLI session.
func (s *SDKSession) EnsureAuthenticated(ctx context.Context) error {
	if s.cred != nil {
		return nil
	}
	opts := s.opts
	if opts.TenantID == "" {
		opts.TenantID = strings.TrimSpace(os.Getenv("AZURE_TENANT_ID"))
	}
	if opts.TenantID == "" {
		tid, err := DetectTenantID()
		if err != nil {
			return &AuthError{}
		}
		opts.TenantID = tid
	}
	cred, err := s.login(ctx, opts)
	if err != nil {
		return err
	}
	s.cred = cred
	return nil
}

// Credential returns the resolved credential, or nil before authentication.
func (s *SDKSession) Credential() *Credential {
	return s.cred
}

// SelectSubscription resolves idOrName among the visible subscriptions. An
// empty value selects the az CLI default, or the only visible subscription.
func (s *SDKSession) SelectSubscription(ctx context.Context, idOrName string) (Subscription, error) {
	if s.cred == nil {
		return Subscription{}, ErrNotAuthenticated
	}
	lister, err := s.newLister(s.cred.TokenCredential)
	if err != nil {
		return Subscription{}, err
	}
	subs, err := lister.ListSubscriptions(ctx)
	if err != nil {
		return Subscription{}, fmt.Errorf("listing subscriptions: %w", err)
	}
	defaultID := ""
	if strings.TrimSpace(idOrName) == "" {
		defaultID, _ = DetectSubscriptionID()
	}
	return pickSubscription(subs, idOrName, defaultID)
}

type armLister struct {
	client *armsubscriptions.Client
}

func newARMLister(cred azcore.TokenCredential) (SubscriptionLister, error) {
	client, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating subscriptions client: %w", err)
	}
	return &armLister{client: client}, nil
}

func (l *armLister) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	pager := l.client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, sub := range page.Value {
			if sub == nil || sub.SubscriptionID == nil {
				continue
			}
			s := Subscription{ID: *sub.SubscriptionID}
			if sub.DisplayName != nil {
				s.Name = *sub.DisplayName
			}
			if sub.TenantID != nil {
				s.TenantID = *sub.TenantID
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// CLISession relies on the az CLI login; it is used with the cli gateway
// backend.
type CLISession struct{}

// NewCLISession returns a session backed by `az account`.
func NewCLISession() *CLISession {
	return &CLISession{}
}

// EnsureAuthenticated checks for an active az CLI login.
func (s *CLISession) EnsureAuthenticated(context.Context) error {
	if _, err := DetectTenantID(); err != nil {
		return &AuthError{}
	}
	return nil
}

// SelectSubscription resolves idOrName among `az account list`.
func (s *CLISession) SelectSubscription(_ context.Context, idOrName string) (Subscription, error) {
	summaries, err := DetectSubscriptions()
	if err != nil {
		return Subscription{}, err
	}
	subs := make([]Subscription, 0, len(summaries))
	defaultID := ""
	for _, sum := range summaries {
		subs = append(subs, Subscription{ID: sum.ID, Name: sum.Name, TenantID: sum.TenantID})
		if sum.IsDefault {
			defaultID = sum.ID
		}
	}
	if strings.TrimSpace(idOrName) != "" {
		defaultID = ""
	}
	return pickSubscription(subs, idOrName, defaultID)
}

// pickSubscription matches by ID first, then display name, both
// case-insensitive. With no selector it falls back to defaultID, then to a
// single visible subscription.
func pickSubscription(subs []Subscription, idOrName, defaultID string) (Subscription, error) {
	if len(subs) == 0 {
		return Subscription{}, fmt.Errorf("no subscriptions visible to the current credential")
	}
	want := strings.TrimSpace(idOrName)
	if want == "" {
		want = defaultID
	}
	if want == "" {
		if len(subs) == 1 {
			return subs[0], nil
		}
		return Subscription{}, fmt.Errorf("%d subscriptions visible; pass --subscription to choose one", len(subs))
	}
	for _, s := range subs {
		if strings.EqualFold(s.ID, want) {
			return s, nil
		}
	}
	var byName []Subscription
	for _, s := range subs {
		if strings.EqualFold(s.Name, want) {
			byName = append(byName, s)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
		return Subscription{}, fmt.Errorf("subscription %q not found", want)
	default:
		return Subscription{}, fmt.Errorf("subscription name %q is ambiguous (%d matches); pass the subscription ID", want, len(byName))
	}
}
