// Package services contains the business logic of forge-engine.
package services

import "crypto/rand"

// deployKeyAlphabet excludes look-alike characters since keys end up in URLs
// users read aloud.
const deployKeyAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// DeployKeyGenerator produces candidate deploy keys. Uniqueness is not a
// property of the generator; the database's unique index decides, and the
// caller retries with a fresh candidate on collision.
type DeployKeyGenerator interface {
	Generate() string
}

type deployKeyGenerator struct {
	length int
}

// NewDeployKeyGenerator creates a generator for keys of the given length.
func NewDeployKeyGenerator(length int) DeployKeyGenerator {
	return &deployKeyGenerator{length: length}
}

// maxUnbiasedByte is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are rejected so every character stays equally
// likely.
const maxUnbiasedByte = byte(256 - 256%len(deployKeyAlphabet))

func (g *deployKeyGenerator) Generate() string {
	key := make([]byte, 0, g.length)
	buf := make([]byte, g.length)
	for len(key) < g.length {
		if _, err := rand.Read(buf); err != nil {
			panic("failed to read random bytes for deploy key: " + err.Error())
		}
		for _, b := range buf {
			if b >= maxUnbiasedByte {
				continue
			}
			key = append(key, deployKeyAlphabet[int(b)%len(deployKeyAlphabet)])
			if len(key) == g.length {
				break
			}
		}
	}
	return string(key)
}

var _ DeployKeyGenerator = (*deployKeyGenerator)(nil)
