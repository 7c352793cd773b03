// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NotificationID returns a new notification row ID ("nt-" prefix).
func NotificationID() (string, error) {
	return generate("nt-", 10)
}

// APIToken returns a new repository webhook token ("wp-" prefix). Longer
// than row IDs since it doubles as a bearer credential.
func APIToken() (string, error) {
	return generate("wp-", 24)
}

func generate(prefix string, length int) (string, error) {
	id, err := nanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
