// Package trigger implements the workflow trigger-token vocabulary shared
// by all orchestration components: ~commit, ~commit:<branch>, ~pr,
// ~pr:<branch> and the cross-pipeline ~sd@<pipelineID>:<jobName> locator.
package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a trigger token
type Kind string

const (
	KindCommit Kind = "commit"
	KindPR     Kind = "pr"
	KindSD     Kind = "sd"
)

// Token is a parsed trigger token. Tokens are the canonical strings
// identifying the cause that should start a job or event.
type Token struct {
	Kind       Kind
	Branch     string // commit/pr tokens; empty means "own branch"
	PipelineID int64  // sd tokens
	JobName    string // sd tokens
}

// Commit returns a ~commit token, branch-qualified when branch is non-empty.
func Commit(branch string) Token {
	return Token{Kind: KindCommit, Branch: branch}
}

// PR returns a ~pr token, branch-qualified when branch is non-empty.
func PR(branch string) Token {
	return Token{Kind: KindPR, Branch: branch}
}

// SD returns the canonical cross-pipeline source token for a job.
func SD(pipelineID int64, jobName string) Token {
	return Token{Kind: KindSD, PipelineID: pipelineID, JobName: jobName}
}

// String formats the token in its canonical wire form.
func (t Token) String() string {
	switch t.Kind {
	case KindSD:
		return fmt.Sprintf("~sd@%d:%s", t.PipelineID, t.JobName)
	case KindCommit, KindPR:
		if t.Branch == "" {
			return "~" + string(t.Kind)
		}
		return fmt.Sprintf("~%s:%s", t.Kind, t.Branch)
	}
	return ""
}

var sdLocatorRE = regexp.MustCompile(`~sd@(\d+):([\w.-]+)`)

// Parse parses a canonical trigger-token string.
func Parse(s string) (Token, error) {
	if !strings.HasPrefix(s, "~") {
		return Token{}, fmt.Errorf("invalid trigger token %q: missing ~ prefix", s)
	}
	if strings.HasPrefix(s, "~sd@") {
		m := sdLocatorRE.FindStringSubmatch(s)
		if m == nil || m[0] != s {
			return Token{}, fmt.Errorf("invalid sd trigger token %q", s)
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Token{}, fmt.Errorf("invalid pipeline id in %q: %w", s, err)
		}
		return Token{Kind: KindSD, PipelineID: id, JobName: m[2]}, nil
	}

	body := strings.TrimPrefix(s, "~")
	kind, branch := body, ""
	if i := strings.IndexByte(body, ':'); i >= 0 {
		kind, branch = body[:i], body[i+1:]
		if branch == "" {
			return Token{}, fmt.Errorf("invalid trigger token %q: empty branch", s)
		}
	}
	switch Kind(kind) {
	case KindCommit:
		return Commit(branch), nil
	case KindPR:
		return PR(branch), nil
	}
	return Token{}, fmt.Errorf("unknown trigger token kind %q", s)
}

// ExtractPipelineID extracts the destination pipeline id from a trigger
// record's dest string. A valid dest embeds exactly one sd locator.
func ExtractPipelineID(dest string) (int64, error) {
	matches := sdLocatorRE.FindAllStringSubmatch(dest, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("no pipeline locator in trigger dest %q", dest)
	}
	if len(matches) > 1 {
		return 0, fmt.Errorf("ambiguous trigger dest %q: %d embedded locators", dest, len(matches))
	}
	id, err := strconv.ParseInt(matches[0][1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid pipeline id in trigger dest %q: %w", dest, err)
	}
	return id, nil
}
