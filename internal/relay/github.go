package relay

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"
)

// ParseGitHub translates a native GitHub webhook payload into a Normalized
// event. eventName is the X-GitHub-Event header value. Only the event types
// Waypost relays are supported.
func ParseGitHub(eventName string, payload []byte) (Normalized, error) {
	raw, err := github.ParseWebHook(eventName, payload)
	if err != nil {
		return Normalized{}, fmt.Errorf("relay: parse github payload: %w", err)
	}

	switch ev := raw.(type) {
	case *github.PullRequestEvent:
		return Normalized{
			Event:  "pull_request",
			Repo:   ev.GetRepo().GetFullName(),
			Title:  ev.GetPullRequest().GetTitle(),
			Author: ev.GetPullRequest().GetUser().GetLogin(),
			URL:    ev.GetPullRequest().GetHTMLURL(),
		}, nil
	case *github.IssuesEvent:
		return Normalized{
			Event:  "issues",
			Repo:   ev.GetRepo().GetFullName(),
			Title:  ev.GetIssue().GetTitle(),
			Author: ev.GetIssue().GetUser().GetLogin(),
			URL:    ev.GetIssue().GetHTMLURL(),
		}, nil
	case *github.PushEvent:
		return Normalized{
			Event:  "push",
			Repo:   ev.GetRepo().GetFullName(),
			Title:  pushTitle(ev),
			Author: ev.GetPusher().GetName(),
			URL:    ev.GetCompare(),
		}, nil
	default:
		return Normalized{}, fmt.Errorf("relay: unsupported github event %q", eventName)
	}
}

// pushTitle summarizes a push: the head commit's subject line, or a count
// when the head commit is absent (e.g. branch deletions).
func pushTitle(ev *github.PushEvent) string {
	if head := ev.GetHeadCommit(); head != nil {
		msg := head.GetMessage()
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		if msg != "" {
			return msg
		}
	}
	ref := strings.TrimPrefix(ev.GetRef(), "refs/heads/")
	return fmt.Sprintf("%d commit(s) pushed to %s", len(ev.Commits), ref)
}
