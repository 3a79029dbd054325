package envelope

import (
	"encoding/base64"
	"strings"
)

// DecodeString decodes a base64-transported token and parses it.
// URL-safe and standard alphabets are accepted, with or without padding.
func DecodeString(token string) (*Envelope, error) {
	data, err := decodeBase64(strings.TrimSpace(token))
	if err != nil {
		return nil, malformed("token is not valid base64")
	}
	return Decode(data)
}

// EncodeToString serializes an Envelope as URL-safe base64 without padding.
func EncodeToString(env *Envelope) (string, error) {
	data, err := Encode(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeTokenBytes decodes a base64 token without parsing the envelope.
func DecodeTokenBytes(token string) ([]byte, error) {
	data, err := decodeBase64(strings.TrimSpace(token))
	if err != nil {
		return nil, malformed("token is not valid base64")
	}
	return data, nil
}

func decodeBase64(s string) ([]byte, error) {
	// Try without padding first
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}

	// Try with padding
	data, err = base64.URLEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}

	// Try standard base64 without padding
	data, err = base64.RawStdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}

	// Try standard base64 with padding
	return base64.StdEncoding.DecodeString(s)
}
