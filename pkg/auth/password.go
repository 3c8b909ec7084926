// Copyright 2025 Aura Calistenia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth hashes and verifies account passwords. Hashes are PBKDF2
// SHA-256 with a per-password random salt; both salt and hash travel as
// standard base64 inside the settings document, so records hashed by earlier
// deployments keep verifying.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/cristalhq/base64"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 16
	iterations = 120000
	keyBytes   = 32
)

// HashPassword derives a salted hash for password and returns the salt and
// hash, both base64 encoded.
func HashPassword(password string) (saltB64, hashB64 string, err error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to draw password salt: %w", err)
	}
	hash := deriveKey(password, salt)
	return base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyPassword reports whether password matches the stored salt and hash.
// Malformed encodings verify as false rather than erroring, and the compare
// is constant time.
func VerifyPassword(password, saltB64, hashB64 string) bool {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}
	hash := deriveKey(password, salt)
	return subtle.ConstantTimeCompare(hash, expected) == 1
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyBytes, sha256.New)
}
