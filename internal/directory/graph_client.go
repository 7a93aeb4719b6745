package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

var (
	ErrUserNotFound     = errors.New("directory user not found")
	ErrGroupNotFound    = errors.New("directory group not found")
	ErrUnexpectedStatus = errors.New("unexpected directory response")
)

const (
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	graphScope         = "https://graph.microsoft.com/.default"
	tokenURLTemplate   = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	userSelect         = "id,displayName,givenName,userPrincipalName"
	defaultProfileTTL  = time.Hour
	maxErrorBodyLength = 512
)

type Config struct {
	BaseURL         string
	TokenURL        string
	TenantID        string
	ClientID        string
	ClientSecret    string
	ProfileCacheTTL time.Duration
}

// GraphClient reads group membership and user profiles from Microsoft Graph.
// Profiles are cached for the configured TTL.
type GraphClient struct {
	http     *http.Client
	baseURL  string
	profiles *cache.Cache
	log      *slog.Logger
}

// NewGraphClient authenticates with the client-credentials flow of the app registration.
func NewGraphClient(ctx context.Context, cfg Config, log *slog.Logger) (*GraphClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("graph client id and secret are required")
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.TenantID == "" {
			return nil, errors.New("graph tenant id or token url is required")
		}
		tokenURL = fmt.Sprintf(tokenURLTemplate, cfg.TenantID)
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, cleanhttp.DefaultPooledClient())
	return NewGraphClientWithHTTP(cc.Client(ctx), cfg.BaseURL, cfg.ProfileCacheTTL, log)
}

func NewGraphClientWithHTTP(httpClient *http.Client, baseURL string, profileTTL time.Duration, log *slog.Logger) (*GraphClient, error) {
	if httpClient == nil {
		return nil, errors.New("http client cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if profileTTL <= 0 {
		profileTTL = defaultProfileTTL
	}
	return &GraphClient{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		profiles: cache.New(profileTTL, 2*profileTTL),
		log:      log,
	}, nil
}

// ListGroupMembers returns the user members of a directory group, following result pages.
func (c *GraphClient) ListGroupMembers(ctx context.Context, groupID string) ([]models.DirectoryUser, error) {
	if groupID == "" {
		return nil, errors.New("group id is required")
	}
	next := fmt.Sprintf("%s/groups/%s/members/microsoft.graph.user?$select=%s&$top=999",
		c.baseURL, url.PathEscape(groupID), userSelect)

	users := make([]models.DirectoryUser, 0)
	for page := 1; next != ""; page++ {
		body, err := c.get(ctx, next)
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("list members of %s: %w", groupID, ErrGroupNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", groupID, err)
		}

		doc := gjson.ParseBytes(body)
		doc.Get("value").ForEach(func(_, v gjson.Result) bool {
			u := userFromJSON(v)
			c.profiles.Set(u.ID, u, cache.DefaultExpiration)
			users = append(users, u)
			return true
		})
		next = nextLink(doc)
		c.log.Debug("fetched group members page", slog.String("group_id", groupID), slog.Int("page", page))
	}
	return users, nil
}

// GetUser returns the profile of one user.
func (c *GraphClient) GetUser(ctx context.Context, userID string) (*models.DirectoryUser, error) {
	if cached, ok := c.profiles.Get(userID); ok {
		u := cached.(models.DirectoryUser)
		return &u, nil
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/users/%s?$select=%s", c.baseURL, url.PathEscape(userID), userSelect))
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("get user %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	u := userFromJSON(gjson.ParseBytes(body))
	if u.ID == "" {
		return nil, fmt.Errorf("get user %s: %w", userID, ErrUserNotFound)
	}
	c.profiles.Set(u.ID, u, cache.DefaultExpiration)
	return &u, nil
}

var errNotFound = errors.New("not found")

func (c *GraphClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" && len(body) > 0 {
			msg = string(body[:min(len(body), maxErrorBodyLength)])
		}
		c.log.Warn("directory request failed", slog.Int("status", resp.StatusCode), slog.String("message", msg))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnexpectedStatus, resp.StatusCode, msg)
	}
	return body, nil
}

func userFromJSON(v gjson.Result) models.DirectoryUser {
	return models.DirectoryUser{
		ID:                v.Get("id").String(),
		DisplayName:       v.Get("displayName").String(),
		GivenName:         v.Get("givenName").String(),
		UserPrincipalName: v.Get("userPrincipalName").String(),
	}
}

// nextLink reads "@odata.nextLink"; gjson paths treat a leading '@' as a modifier.
func nextLink(doc gjson.Result) string {
	var link string
	doc.ForEach(func(k, v gjson.Result) bool {
		if k.String() == "@odata.nextLink" {
			link = v.String()
			return false
		}
		return true
	})
	return link
}
