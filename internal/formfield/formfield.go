// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package formfield pulls named values out of the hidden inputs of an HTML login form.
package formfield

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"go.kretalogin.dev/internal/constable"
)

const ErrMissingField = constable.Error("form field not found")

// Rule selects the first element with the given tag whose attribute AttrKey equals AttrVal.
// The element's value attribute is stored under Field.
type Rule struct {
	Tag     string
	AttrKey string
	AttrVal string
	Field   string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s[%s=%s]", r.Tag, r.AttrKey, r.AttrVal)
}

// Values maps each rule's Field to the value that was found.
type Values map[string]string

// MissingFieldError reports the rule that matched nothing.
type MissingFieldError struct {
	Rule Rule
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s (selector %s)", ErrMissingField, e.Rule.Field, e.Rule)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// Extract parses the document and applies every rule to it.
// An element that matches but has no value attribute yields an empty value.
func Extract(r io.Reader, rules []Rule) (Values, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("could not parse login page: %w", err)
	}
	values := make(Values, len(rules))
	for _, rule := range rules {
		n := findNodeByAttr(doc, rule.Tag, rule.AttrKey, rule.AttrVal)
		if n == nil {
			return nil, &MissingFieldError{Rule: rule}
		}
		values[rule.Field] = attr(n, "value")
	}
	return values, nil
}

// ExtractString is Extract for an in-memory document.
func ExtractString(doc string, rules []Rule) (Values, error) {
	return Extract(strings.NewReader(doc), rules)
}

func findNodeByAttr(n *html.Node, tag, key, val string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == val {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNodeByAttr(c, tag, key, val); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
