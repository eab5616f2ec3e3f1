// ABOUTME: Credential preconditions for the servers under test
// ABOUTME: Validates required env vars before any subprocess is spawned

package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables both server implementations require.
const (
	EnvWorkspace = "BITBUCKET_WORKSPACE"
	EnvEmail     = "BITBUCKET_EMAIL"
	EnvToken     = "BITBUCKET_API_TOKEN"
)

// Credentials holds the credential-shaped variables passed to both servers.
type Credentials struct {
	Workspace string
	Email     string
	Token     string
}

// LoadCredentials reads the required variables from the environment. Every
// missing variable is named in the error so the precondition failure is
// actionable before any process is spawned.
func LoadCredentials() (*Credentials, error) {
	var missing []string
	for _, v := range []string{EnvWorkspace, EnvEmail, EnvToken} {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return &Credentials{
		Workspace: os.Getenv(EnvWorkspace),
		Email:     os.Getenv(EnvEmail),
		Token:     os.Getenv(EnvToken),
	}, nil
}

// Env returns the session environment overlay for a server under test.
func (c *Credentials) Env() map[string]string {
	return map[string]string{
		EnvWorkspace: c.Workspace,
		EnvEmail:     c.Email,
		EnvToken:     c.Token,
	}
}
