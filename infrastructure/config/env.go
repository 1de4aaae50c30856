package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// ${VAR}, ${VAR:-default}, ${VAR:?message}
	bracketedRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*|:\?[^}]*)?\}`)
	// bare $VAR
	bareRef = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// envExpander substitutes environment variable references in raw config
// bytes before parsing. Strict mode turns unset references into errors
// instead of empty strings.
type envExpander struct {
	strict  bool
	missing []string
}

// Expand resolves every reference in input. Supported forms:
//
//	${VAR}           the value of VAR, empty if unset
//	${VAR:-default}  the value of VAR, or default if unset or empty
//	${VAR:?message}  the value of VAR, or an error carrying message
//	$VAR             bare form of ${VAR}
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil

	result := bracketedRef.ReplaceAllStringFunc(input, e.resolveBracketed)
	result = bareRef.ReplaceAllStringFunc(result, func(match string) string {
		return e.resolve(match[1:], match)
	})

	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return result, nil
}

func (e *envExpander) resolveBracketed(match string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
	name, modifier, hasModifier := strings.Cut(inner, ":")
	if !hasModifier {
		return e.resolve(name, match)
	}

	value, set := os.LookupEnv(name)
	switch {
	case strings.HasPrefix(modifier, "-"):
		if !set || value == "" {
			return modifier[1:]
		}
	case strings.HasPrefix(modifier, "?"):
		if !set || value == "" {
			e.missing = append(e.missing, fmt.Sprintf("%s: %s", name, modifier[1:]))
			// Leave the reference in place for error reporting.
			return match
		}
	}
	return value
}

func (e *envExpander) resolve(name, match string) string {
	value, set := os.LookupEnv(name)
	if !set {
		if e.strict {
			e.missing = append(e.missing, name)
			return match
		}
		return ""
	}
	return value
}

// ExpandEnv resolves references in input, treating unset variables as empty.
func ExpandEnv(input string) string {
	e := &envExpander{strict: false}
	result, _ := e.Expand(input)
	return result
}

// ExpandEnvStrict resolves references in input and errors on unset variables.
func ExpandEnvStrict(input string) (string, error) {
	e := &envExpander{strict: true}
	return e.Expand(input)
}
