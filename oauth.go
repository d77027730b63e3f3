package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

func googleOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.BackendURL + "/api/auth/google/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
	}
}

func githubOAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		RedirectURL:  cfg.BackendURL + "/api/auth/github/callback",
		Scopes:       []string{"user:email"},
		Endpoint:     endpoints.GitHub,
	}
}

func oauthLoginHandler(conf func() *oauth2.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := conf().AuthCodeURL("state")
		if r.URL.Query().Get("redirect") == "true" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// findOrCreateOAuthUser looks the provider identity up and creates the user
// on first login.
func findOrCreateOAuthUser(ctx context.Context, provider, providerID, email, name string, avatarURL *string) (User, error) {
	user, err := fetchUserByProvider(ctx, provider, providerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return createOAuthUser(ctx, email, name, avatarURL, provider, providerID)
	}
	return user, err
}

// redirectWithTokens hands the token pair back to the frontend callback.
func redirectWithTokens(w http.ResponseWriter, r *http.Request, user User) {
	access, refresh := issueTokenPair(user.id)
	url := fmt.Sprintf("%s/auth/callback?access_token=%s&refresh_token=%s",
		cfg.FrontendURL, access, refresh)
	http.Redirect(w, r, url, http.StatusFound)
}

func googleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	tok, err := googleOAuthConfig().Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with Google")
		return
	}

	var profile struct {
		ID      string  `json:"id"`
		Email   string  `json:"email"`
		Name    string  `json:"name"`
		Picture *string `json:"picture"`
	}
	client := googleOAuthConfig().Client(r.Context(), tok)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with Google")
		return
	}
	defer resp.Body.Close()
	if json.NewDecoder(resp.Body).Decode(&profile) != nil || profile.Email == "" {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with Google")
		return
	}
	if profile.Name == "" {
		profile.Name = profile.Email
	}

	user, err := findOrCreateOAuthUser(r.Context(), "google", profile.ID, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	redirectWithTokens(w, r, user)
}

func githubCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	tok, err := githubOAuthConfig().Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with GitHub")
		return
	}

	var profile struct {
		ID        int64   `json:"id"`
		Email     string  `json:"email"`
		Name      string  `json:"name"`
		Login     string  `json:"login"`
		AvatarURL *string `json:"avatar_url"`
	}
	client := githubOAuthConfig().Client(r.Context(), tok)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with GitHub")
		return
	}
	defer resp.Body.Close()
	if json.NewDecoder(resp.Body).Decode(&profile) != nil {
		writeError(w, http.StatusBadRequest, "Failed to authenticate with GitHub")
		return
	}

	// GitHub hides the email unless the user made it public; fall back to
	// the primary address from the emails endpoint.
	if profile.Email == "" {
		profile.Email, err = githubPrimaryEmail(client)
		if err != nil || profile.Email == "" {
			writeError(w, http.StatusBadRequest,
				"Could not get email from GitHub. Please make sure your email is public or grant email access.")
			return
		}
	}
	if profile.Name == "" {
		profile.Name = profile.Login
	}

	user, err := findOrCreateOAuthUser(r.Context(), "github",
		strconv.FormatInt(profile.ID, 10), profile.Email, profile.Name, profile.AvatarURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	redirectWithTokens(w, r, user)
}

func githubPrimaryEmail(client *http.Client) (string, error) {
	resp, err := client.Get("https://api.github.com/user/emails")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", nil
}
