// Package roomname generates memorable room names.
package roomname

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// maxAttempts bounds retries against taken names before a numeric suffix
// is added.
const maxAttempts = 32

// Generate returns a name like "sleepy-otter-waffle" for which taken
// reports false. A nil taken accepts the first name.
func Generate(taken func(string) bool) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		name, err := random()
		if err != nil {
			return "", err
		}
		if taken == nil || !taken(name) {
			return name, nil
		}
	}

	for {
		name, err := random()
		if err != nil {
			return "", err
		}
		n, err := randomIndex(1000)
		if err != nil {
			return "", err
		}
		name = fmt.Sprintf("%s-%d", name, n)
		if !taken(name) {
			return name, nil
		}
	}
}

func random() (string, error) {
	lists := [][]string{adjectives, animals, things}
	words := make([]string, len(lists))
	for i, list := range lists {
		idx, err := randomIndex(len(list))
		if err != nil {
			return "", err
		}
		words[i] = list[idx]
	}
	return strings.Join(words, "-"), nil
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random index: %w", err)
	}
	return int(n.Int64()), nil
}
