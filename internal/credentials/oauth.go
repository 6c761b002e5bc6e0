package credentials

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/imrishuroy/marketplace-orderflow/internal/upstream"
)

// Token is the OAuth token endpoint response.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
}

// OAuthExchanger trades a refresh token for a new credential.
type OAuthExchanger struct {
	client       *upstream.Client
	tokenURL     string
	clientID     string
	clientSecret string
}

// NewOAuthExchanger returns an exchanger posting to <baseURL>/oauth/token.
func NewOAuthExchanger(client *upstream.Client, baseURL, clientID, clientSecret string) *OAuthExchanger {
	return &OAuthExchanger{
		client:       client,
		tokenURL:     strings.TrimRight(baseURL, "/") + "/oauth/token",
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Exchange performs the refresh_token grant.
func (e *OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {e.clientID},
		"client_secret": {e.clientSecret},
		"refresh_token": {refreshToken},
	}
	var tok Token
	err := e.client.Do(ctx, upstream.Request{
		Method:   http.MethodPost,
		URL:      e.tokenURL,
		Resource: "oauth_token",
		Form:     form,
	}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}
