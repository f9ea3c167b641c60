package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/freestylevancouver/volunteer-portal/internal/config"
	"github.com/freestylevancouver/volunteer-portal/pkg/utils"
)

// DefaultSendInterval spaces consecutive sends to stay under Gmail's rate limits
const DefaultSendInterval = 3 * time.Second

// Client sends reminder emails through the Gmail API
type Client struct {
	service  *gmail.Service
	ctx      context.Context
	userID   string
	sender   string
	interval time.Duration
	logger   *zap.Logger

	sendMutex    sync.Mutex
	lastSendTime time.Time
}

// NewClient creates a Gmail client from a token that already carries the
// gmail.send scope. sender is placed in the From header when set.
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token, sender string, logger *zap.Logger) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return NewClientWithService(ctx, service, sender, logger), nil
}

// NewClientWithService wraps an existing service
func NewClientWithService(ctx context.Context, service *gmail.Service, sender string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		service:  service,
		ctx:      ctx,
		userID:   "me",
		sender:   sender,
		interval: DefaultSendInterval,
		logger:   logger,
	}
}

// SetSendInterval overrides the spacing between sends
func (c *Client) SetSendInterval(d time.Duration) {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	c.interval = d
}
