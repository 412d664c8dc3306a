package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	alphanumeric   = "abcdefghijklmnopqrstuvwxyz0123456789"
	secretChars    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateShortID generates a 20-char ID (first char alphabetic, rest alphanumeric)
func GenerateShortID() string {
	firstChar, _ := gonanoid.Generate(lowercaseChars, 1)
	rest, _ := gonanoid.Generate(alphanumeric, 19)
	return firstChar + rest
}

// GenerateSecret generates a 32-char random secret for tenant credential derivation
func GenerateSecret() string {
	secret, _ := gonanoid.Generate(secretChars, 32)
	return secret
}
