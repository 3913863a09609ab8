// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MintRoomToken creates a signed room access token for deployments where the
// engine holds the room server's shared secret instead of receiving a
// pre-minted token. The claim shape follows the room server's convention:
// issuer is the API key, subject is the participant identity, and the video
// grant names the room.
func MintRoomToken(apiKey, secret, roomName, identity string, ttl time.Duration) (string, error) {
	if apiKey == "" || secret == "" {
		return "", fmt.Errorf("room token: api key and secret are required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": apiKey,
		"sub": identity,
		"nbf": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"video": map[string]interface{}{
			"room":     roomName,
			"roomJoin": true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("room token: signing failed: %w", err)
	}
	return signed, nil
}

// VerifyRoomToken validates a room token signature and expiry and returns the
// room name from the video grant.
func VerifyRoomToken(tokenString, secret string) (room string, identity string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("room token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("room token: invalid claims")
	}
	if sub, ok := claims["sub"].(string); ok {
		identity = sub
	}
	if video, ok := claims["video"].(map[string]interface{}); ok {
		if r, ok := video["room"].(string); ok {
			room = r
		}
	}
	return room, identity, nil
}
