package prompt

import (
	"fmt"
	"sort"
)

// SecretPromptFunc collects a key password from the user without echoing it
// where the method supports that.
type SecretPromptFunc func(message string) (string, error)

var Methods = map[string]SecretPromptFunc{}

func Available() []string {
	methods := []string{}
	for k := range Methods {
		methods = append(methods, k)
	}
	sort.Strings(methods)
	return methods
}

func Method(s string) SecretPromptFunc {
	m, ok := Methods[s]
	if !ok {
		panic(fmt.Sprintf("Prompt method %q doesn't exist", s))
	}
	return m
}
