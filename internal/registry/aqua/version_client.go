// Package aqua provides a VersionClient for fetching latest versions from GitHub.
package aqua

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kagenomi/tvm/internal/github"
)

// VersionClient fetches latest version information from GitHub, reusing
// the shared release client rather than rolling its own HTTP/JSON path.
type VersionClient struct {
	httpClient *http.Client
}

// NewVersionClient creates a new VersionClient with the given HTTP client.
// If client is nil, a default HTTP client with timeout is used.
func NewVersionClient(client *http.Client) *VersionClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &VersionClient{
		httpClient: client,
	}
}

// GetLatestRef fetches the latest tag of aqua-registry itself.
func (c *VersionClient) GetLatestRef(ctx context.Context) (string, error) {
	tag, err := github.GetLatestRelease(ctx, c.httpClient, "aquaproj", "aqua-registry", "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch latest aqua-registry release: %w", err)
	}
	return tag, nil
}

// GetLatestToolVersion fetches the latest released tag of repoOwner/repoName.
func (c *VersionClient) GetLatestToolVersion(ctx context.Context, repoOwner, repoName string) (string, error) {
	if err := validatePathComponent(repoOwner); err != nil {
		return "", fmt.Errorf("invalid repo owner: %w", err)
	}
	if err := validatePathComponent(repoName); err != nil {
		return "", fmt.Errorf("invalid repo name: %w", err)
	}

	tag, err := github.GetLatestRelease(ctx, c.httpClient, repoOwner, repoName, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch latest release for %s/%s: %w", repoOwner, repoName, err)
	}
	return tag, nil
}
