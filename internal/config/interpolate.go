package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRefRe matches ${NAME} and ${NAME:-default}. Go's standard os.Expand
// only supports the bare $NAME / ${NAME} form, not the :-default
// fallback, so the expansion is hand-rolled here (spec §6.4: "${NAME} and
// ${NAME:-default} are both recognized").
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// interpolate expands every ${NAME} / ${NAME:-default} reference in raw
// against the process environment, using lookup in place of os.Getenv so
// tests can inject a fake environment. A ${NAME} reference with no
// :-default fallback whose NAME is unset in the environment is rejected
// per spec §4.5.1's boundary behaviour rather than silently expanded to
// the empty string.
func interpolate(raw string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := envRefRe.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envRefRe.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v, ok := lookup(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unset environment variable(s) referenced without a default: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func osLookup(name string) (string, bool) { return os.LookupEnv(name) }
