package testevents

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/playstack/internal/domain/aggregate"
)

// verifyTeam waits for the team's recomputed summary to cover every pushed
// play, then asks for the same data on demand and compares signatures.
func verifyTeam(ctx context.Context, client *httpClient, cfg Config, d dataset) (bool, error) {
	want := len(d.events)
	deadline := time.Now().Add(cfg.VerifyWithin)

	var summary aggregate.Result
	for {
		status, err := client.do(ctx, http.MethodGet, "/teams/"+d.teamID+"/summary", nil, &summary, nil)
		if err == nil && status == http.StatusOK && summary.Aggregate != nil && summary.Aggregate.Plays == want {
			break
		}
		if time.Now().After(deadline) {
			got := 0
			if summary.Aggregate != nil {
				got = summary.Aggregate.Plays
			}
			return false, fmt.Errorf("summary has %d of %d plays (status %d): %v", got, want, status, err)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}

	var onDemand aggregate.Result
	body := batch{Events: d.events, Games: d.games}
	headers := map[string]string{tenantHeader: "push-" + d.teamID}
	status, err := client.do(ctx, http.MethodPost, "/teams/"+d.teamID+"/stacks", body, &onDemand, headers)
	if err != nil || status != http.StatusOK {
		return false, fmt.Errorf("on-demand stacks: status %d: %v", status, err)
	}
	if onDemand.Signature != summary.Signature {
		return false, fmt.Errorf("signature mismatch: summary %s, on demand %s", summary.Signature, onDemand.Signature)
	}
	return true, nil
}
