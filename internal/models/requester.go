package models

import "strconv"

// Requester identifies who is asking for a build mutation: either the
// build itself reporting its own progress, or a human user. The identity
// is resolved once at the API boundary and passed explicitly.
type Requester struct {
	buildID    int64
	username   string
	scmContext string
}

// BuildRequester returns a requester acting as the given build.
func BuildRequester(buildID int64) Requester {
	return Requester{buildID: buildID}
}

// UserRequester returns a requester acting as a human user.
func UserRequester(username, scmContext string) Requester {
	return Requester{username: username, scmContext: scmContext}
}

// IsBuild reports whether the requester is a build identity.
func (r Requester) IsBuild() bool {
	return r.buildID != 0
}

// BuildID returns the build id for build-identity requesters, 0 otherwise.
func (r Requester) BuildID() int64 {
	return r.buildID
}

// Username returns the username for human requesters, "" otherwise.
func (r Requester) Username() string {
	return r.username
}

// SCMContext returns the SCM context for human requesters, "" otherwise.
func (r Requester) SCMContext() string {
	return r.scmContext
}

// Display returns a human-readable identity for status messages.
func (r Requester) Display() string {
	if r.IsBuild() {
		return "build " + strconv.FormatInt(r.buildID, 10)
	}
	return r.username
}
