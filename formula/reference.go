package formula

import (
	"fmt"
	"strings"

	"github.com/goplus/llar-glib/pkgs/gnu"
	"golang.org/x/mod/semver"
)

// Reference identifies a package as name/version@user/channel.
// Version may be a range such as "[>=0.2.0]" when it is a requirement.
type Reference struct {
	Name    string
	Version string
	User    string
	Channel string
}

// ParseReference parses "name/version[@user/channel]".
func ParseReference(s string) (Reference, error) {
	var ref Reference
	pkg, owner, hasOwner := strings.Cut(strings.TrimSpace(s), "@")
	name, version, ok := strings.Cut(pkg, "/")
	if !ok || name == "" || version == "" {
		return ref, fmt.Errorf("invalid reference %q: want name/version[@user/channel]", s)
	}
	ref.Name, ref.Version = name, version
	if hasOwner {
		user, channel, ok := strings.Cut(owner, "/")
		if !ok || user == "" || channel == "" {
			return ref, fmt.Errorf("invalid reference %q: want user/channel after @", s)
		}
		ref.User, ref.Channel = user, channel
	}
	return ref, nil
}

// MustParseReference is like ParseReference but panics on error.
func MustParseReference(s string) Reference {
	ref, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r Reference) String() string {
	s := r.Name + "/" + r.Version
	if r.User != "" {
		s += "@" + r.User + "/" + r.Channel
	}
	return s
}

// IsRange reports whether the version of r is a range expression.
func (r Reference) IsRange() bool {
	return strings.HasPrefix(r.Version, "[") && strings.HasSuffix(r.Version, "]")
}

// Matches reports whether version satisfies the version of r.
func (r Reference) Matches(version string) bool {
	if !r.IsRange() {
		return CompareVersions(r.Version, version) == 0
	}
	expr := strings.TrimSuffix(strings.TrimPrefix(r.Version, "["), "]")
	clauses := strings.FieldsFunc(expr, func(c rune) bool { return c == ',' || c == ' ' })
	for _, clause := range clauses {
		if !matchClause(clause, version) {
			return false
		}
	}
	return true
}

func matchClause(clause, version string) bool {
	for _, op := range []string{">=", "<=", ">", "<", "="} {
		want, ok := strings.CutPrefix(clause, op)
		if !ok {
			continue
		}
		c := CompareVersions(version, want)
		switch op {
		case ">=":
			return c >= 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case "<":
			return c < 0
		default:
			return c == 0
		}
	}
	return CompareVersions(version, clause) == 0
}

// CompareVersions orders two versions. Semantic versions (with or without a
// leading "v") compare by semver precedence; anything else falls back to GNU
// version ordering.
func CompareVersions(v1, v2 string) int {
	s1, s2 := canonical(v1), canonical(v2)
	if semver.IsValid(s1) && semver.IsValid(s2) {
		return semver.Compare(s1, s2)
	}
	return gnu.Compare(v1, v2)
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
