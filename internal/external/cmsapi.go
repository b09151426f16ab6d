package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pagenotify/internal/cms"
	"pagenotify/internal/config"
	"pagenotify/internal/types"
)

// CMSAPIClient adapts the host platform's action-style HTTP API to the
// cms contracts: page rendering, cache purging, group membership queries,
// and user contact lookups. One client instance satisfies all three
// interfaces.
type CMSAPIClient struct {
	base     *BaseClient
	endpoint string
	user     string
	password types.SecretString
	logger   types.Logger
}

// NewCMSAPIClient creates a platform API client from configuration.
func NewCMSAPIClient(cfg config.PlatformConfig, logger types.Logger) (*CMSAPIClient, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamPlatform,
			"platform api url is not configured", nil)
	}

	base := NewBaseClient(
		&http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
		"platform-api",
		DefaultRetryPolicy(),
		"pagenotify/1.0",
	)

	return &CMSAPIClient{
		base:     base,
		endpoint: strings.TrimSuffix(cfg.APIURL, "/"),
		user:     cfg.APIUser,
		password: cfg.APIPassword,
		logger:   logger,
	}, nil
}

// apiError is the platform's error envelope.
type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// pageNotFoundCodes are the platform error codes meaning the page
// reference does not resolve to renderable content.
var pageNotFoundCodes = map[string]struct{}{
	"nosuchpageid": {},
	"missingtitle": {},
	"invalidtitle": {},
}

// get performs one API query and decodes the JSON envelope into out.
func (c *CMSAPIClient) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPlatform, "building platform request", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password.Unmask())
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPlatform, "platform api unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamPlatform,
			fmt.Sprintf("platform api returned %d", resp.StatusCode),
			nil,
			map[string]any{"response": string(detail)},
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPlatform, "reading platform response", err)
	}

	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPlatform, "decoding platform response", err)
	}
	if envelope.Error != nil {
		if _, notFound := pageNotFoundCodes[envelope.Error.Code]; notFound {
			return types.NewAppError(types.ErrCodePageInvalid, envelope.Error.Info, nil)
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamPlatform,
			"platform api error",
			nil,
			map[string]any{"code": envelope.Error.Code, "info": envelope.Error.Info},
		)
	}

	return json.Unmarshal(body, out)
}

// ---------------------------------------------------------------------------
// cms.PageRenderer
// ---------------------------------------------------------------------------

type parseResponse struct {
	Parse struct {
		Text string `json:"text"`
	} `json:"parse"`
}

// RenderPage renders the page in the given locale and returns its HTML.
func (c *CMSAPIClient) RenderPage(ctx context.Context, pageID int64, locale string) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("pageid", strconv.FormatInt(pageID, 10))
	params.Set("uselang", locale)
	params.Set("disabletoc", "1")
	params.Set("disableeditsection", "1")

	var out parseResponse
	if err := c.get(ctx, params, &out); err != nil {
		return "", err
	}
	return out.Parse.Text, nil
}

// RenderInline renders a markup fragment, used for per-recipient subjects.
func (c *CMSAPIClient) RenderInline(ctx context.Context, markup string, locale string) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("text", markup)
	params.Set("contentmodel", "wikitext")
	params.Set("uselang", locale)
	params.Set("disabletoc", "1")

	var out parseResponse
	if err := c.get(ctx, params, &out); err != nil {
		return "", err
	}
	return out.Parse.Text, nil
}

// PurgePage invalidates the platform's render cache for the page.
func (c *CMSAPIClient) PurgePage(ctx context.Context, pageID int64) error {
	params := url.Values{}
	params.Set("action", "purge")
	params.Set("pageids", strconv.FormatInt(pageID, 10))

	var out struct{}
	return c.get(ctx, params, &out)
}

// ---------------------------------------------------------------------------
// cms.MembershipService
// ---------------------------------------------------------------------------

type allUsersResponse struct {
	Query struct {
		AllUsers []struct {
			UserID int64  `json:"userid"`
			Name   string `json:"name"`
		} `json:"allusers"`
	} `json:"query"`
}

// UsersInGroups returns the deduplicated user ids of all members of the
// given groups, bounded to limit per query.
func (c *CMSAPIClient) UsersInGroups(ctx context.Context, groups []string, limit int) ([]int64, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "allusers")
	params.Set("augroup", strings.Join(groups, "|"))
	params.Set("aulimit", strconv.Itoa(limit))

	var out allUsersResponse
	if err := c.get(ctx, params, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeMembershipQuery, "membership query failed", err)
	}

	seen := map[int64]struct{}{}
	var ids []int64
	for _, u := range out.Query.AllUsers {
		if _, dup := seen[u.UserID]; dup {
			continue
		}
		seen[u.UserID] = struct{}{}
		ids = append(ids, u.UserID)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// cms.UserDirectory
// ---------------------------------------------------------------------------

type usersResponse struct {
	Query struct {
		Users []struct {
			UserID  int64    `json:"userid"`
			Name    string   `json:"name"`
			Email   string   `json:"email"`
			Rights  []string `json:"rights"`
			Options struct {
				Language string `json:"language"`
			} `json:"options"`
		} `json:"users"`
	} `json:"query"`
}

// GetUserContact returns the user's delivery address, display name, and
// configured locale. A user without a confirmed email yields an empty
// Email, not an error.
func (c *CMSAPIClient) GetUserContact(ctx context.Context, userID int64) (types.UserContact, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "users")
	params.Set("ususerids", strconv.FormatInt(userID, 10))
	params.Set("usprop", "emailable|options")

	var out usersResponse
	if err := c.get(ctx, params, &out); err != nil {
		return types.UserContact{}, err
	}
	if len(out.Query.Users) == 0 {
		return types.UserContact{}, types.NewAppError(types.ErrCodeUpstreamPlatform,
			fmt.Sprintf("user %d not found", userID), nil)
	}

	u := out.Query.Users[0]
	return types.UserContact{
		ID:     u.UserID,
		Email:  u.Email,
		Name:   u.Name,
		Locale: u.Options.Language,
	}, nil
}

// UserHasPermission reports whether the user holds the named capability.
func (c *CMSAPIClient) UserHasPermission(ctx context.Context, userID int64, capability string) (bool, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "users")
	params.Set("ususerids", strconv.FormatInt(userID, 10))
	params.Set("usprop", "rights")

	var out usersResponse
	if err := c.get(ctx, params, &out); err != nil {
		return false, err
	}
	if len(out.Query.Users) == 0 {
		return false, nil
	}
	for _, right := range out.Query.Users[0].Rights {
		if right == capability {
			return true, nil
		}
	}
	return false, nil
}

// Compile-time assertions that CMSAPIClient satisfies the cms contracts.
var (
	_ cms.PageRenderer      = (*CMSAPIClient)(nil)
	_ cms.MembershipService = (*CMSAPIClient)(nil)
	_ cms.UserDirectory     = (*CMSAPIClient)(nil)
)

// timeoutOrDefault keeps a zero config timeout from disabling HTTP
// timeouts entirely.
func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}
