package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agenthands/keepsake/internal/apperr"
)

var (
	identPattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	prefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)
)

const prefixSep = "-"

// Namespace maps domain labels to environment-scoped labels ("Person" -> "prod-Person")
// and back. An empty prefix is the identity transform.
type Namespace struct {
	prefix string
}

func NewNamespace(prefix string) (Namespace, error) {
	if prefix != "" && !prefixPattern.MatchString(prefix) {
		return Namespace{}, apperr.Invalid(fmt.Sprintf("invalid graph environment prefix %q", prefix))
	}
	return Namespace{prefix: prefix}, nil
}

func (n Namespace) Prefix() string { return n.prefix }

func (n Namespace) Apply(name string) string {
	if n.prefix == "" {
		return name
	}
	return n.prefix + prefixSep + name
}

// Strip reverses Apply. ok is false for names from another namespace.
func (n Namespace) Strip(name string) (string, bool) {
	if n.prefix == "" {
		return name, true
	}
	p := n.prefix + prefixSep
	if !strings.HasPrefix(name, p) {
		return name, false
	}
	return name[len(p):], true
}

// Quote validates a domain name and returns its namespaced, backtick-quoted form.
func (n Namespace) Quote(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", apperr.Invalid(fmt.Sprintf("invalid graph label %q", name))
	}
	return "`" + n.Apply(name) + "`", nil
}

// domainLabel picks the first label of a node that belongs to this namespace.
func (n Namespace) domainLabel(labels []string) (string, bool) {
	for _, l := range labels {
		if d, ok := n.Strip(l); ok {
			return d, true
		}
	}
	return "", false
}
