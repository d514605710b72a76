package github

import (
	"fmt"
	"regexp"
	"strings"
)

// repoURLPattern matches any string containing "github.com/<owner>/<name>".
// Deliberately loose: it accepts full URLs ("https://github.com/a/b"),
// scheme-less forms ("github.com/a/b"), and URLs with extra path segments
// or query strings after the repo name are cut off by the [^/\s] class
// stopping at the next "/".
var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/\s?#]+)`)

// bareRepoPattern matches a plain "owner/name" identifier.
var bareRepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ParseRepo normalizes a user-supplied repository reference to "owner/name".
//
// Accepted inputs:
//
//	https://github.com/owner/name
//	https://github.com/owner/name.git
//	github.com/owner/name
//	owner/name
//
// A trailing ".git" is always stripped. Anything else is rejected.
func ParseRepo(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("github: repository is required")
	}

	if m := repoURLPattern.FindStringSubmatch(raw); m != nil {
		return m[1] + "/" + strings.TrimSuffix(m[2], ".git"), nil
	}

	if bare := strings.TrimSuffix(raw, ".git"); bareRepoPattern.MatchString(bare) {
		return bare, nil
	}

	return "", fmt.Errorf("github: %q is not a valid GitHub repository (want owner/name or a github.com URL)", raw)
}
