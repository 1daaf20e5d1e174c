package ingest

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CloudAppAdapter streams an Azure Container App's log-stream
// endpoint over plain HTTPS, authenticating with a bearer token from
// azidentity. There is no Azure SDK client for the Container Apps
// log-stream endpoint itself (it's a chunked-transfer HTTP GET, not a
// typed data-plane operation), so the streaming call is a stdlib
// http.Client.Do; azidentity only does what the SDK actually covers,
// acquiring and refreshing the token.
type CloudAppAdapter struct {
	Endpoint    string
	Scope       string
	Credential  *azidentity.DefaultAzureCredential
	HTTPClient  *http.Client
	// Fallback runs when the primary HTTPS stream fails for a
	// non-auth reason after one retry, e.g. `az containerapp logs
	// show --follow`.
	Fallback *CommandAdapter
}

func (a *CloudAppAdapter) Run(ctx context.Context, sourceID string, out chan<- SourceEvent) {
	if !emitStatus(ctx, out, sourceID, KindCloudApp, StateStarting, nil) {
		emitTerminal(out, sourceID, KindCloudApp, StateStopped, nil)
		return
	}

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	// announcedRunning survives across streamOnce attempts: a
	// mid-stream break followed by a successful retry reconnects the
	// same logical source, it does not start a new one, so Running
	// must only be reported once per incarnation (the docker adapter
	// applies the same guard across its reconnect loop).
	announcedRunning := false

	attempts := 0
	for attempts < 2 {
		attempts++
		if ctx.Err() != nil {
			emitTerminal(out, sourceID, KindCloudApp, StateStopped, nil)
			return
		}

		authFailed, err := a.streamOnce(ctx, sourceID, out, client, &announcedRunning)
		if authFailed {
			emitTerminal(out, sourceID, KindCloudApp, StateError, fmt.Errorf("cloud app auth failed: %w", err))
			return
		}
		if err == nil {
			emitTerminal(out, sourceID, KindCloudApp, StateStopped, nil)
			return
		}
	}

	if a.Fallback == nil {
		emitTerminal(out, sourceID, KindCloudApp, StateError, fmt.Errorf("cloud app stream unavailable after retry"))
		return
	}
	a.Fallback.Run(ctx, sourceID, out)
}

// streamOnce performs one HTTPS streaming attempt. authFailed is true
// only when the bearer token cannot be fetched or the response is
// 401/403; both short-circuit the retry: a bad token will not fix
// itself on a second try. announcedRunning is
// shared across attempts so a retry that reconnects successfully does
// not re-announce Running.
func (a *CloudAppAdapter) streamOnce(ctx context.Context, sourceID string, out chan<- SourceEvent, client *http.Client, announcedRunning *bool) (authFailed bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Endpoint, nil)
	if err != nil {
		return false, err
	}

	if a.Credential != nil {
		tok, tokErr := a.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{a.Scope}})
		if tokErr != nil {
			return true, tokErr
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true, fmt.Errorf("cloud app log stream returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("cloud app log stream returned %d", resp.StatusCode)
	}

	if !*announcedRunning {
		// Running is non-terminal; a dropped delivery doesn't change
		// that the connection is live, so keep streaming.
		emitStatus(ctx, out, sourceID, KindCloudApp, StateRunning, nil)
		*announcedRunning = true
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if !emitLog(ctx, out, sourceID, KindCloudApp, sc.Text(), time.Now()) {
			return false, nil
		}
	}
	return false, sc.Err()
}
