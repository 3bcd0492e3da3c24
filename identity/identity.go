// Package identity wraps the external identity provider's management
// API. Sign-in, sign-up and JWT issuance all happen on the provider's
// side; this client only looks up accounts and profile fields.
package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"gallery/config"
)

var httpClient = http.Client{}

type Profile struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`
	ImageURL  string `json:"picture"`
}

// Provider is swapped for a stub in tests
type Provider interface {
	LookupByEmail(email string) (*Profile, error)
	FetchProfile(userID string) (*Profile, error)
}

var Default Provider = &httpProvider{}

type httpProvider struct{}

// LookupByEmail returns nil without error when no account matches
func (p *httpProvider) LookupByEmail(email string) (*Profile, error) {
	if config.IDENTITY_API_URL == "" {
		return nil, nil
	}
	var profiles []Profile
	err := p.get("/users-by-email?email="+url.QueryEscape(email), &profiles)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

func (p *httpProvider) FetchProfile(userID string) (*Profile, error) {
	if config.IDENTITY_API_URL == "" {
		return nil, fmt.Errorf("identity API not configured")
	}
	var profile Profile
	if err := p.get("/users/"+url.PathEscape(userID), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *httpProvider) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, config.IDENTITY_API_URL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+config.IDENTITY_API_TOKEN)
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("identity API status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
