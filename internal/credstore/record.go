package credstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmaguire/sigenflux/internal/tokenmanager"
)

// record is the persisted layout: one JSON object, whole-record overwrite.
type record struct {
	AccessToken  *string         `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresIn    json.RawMessage `json:"expires_in,omitempty"`
	RetrievedAt  *int64          `json:"retrieved_at"`
}

// decodeRecord parses stored bytes into a credential set. Malformed JSON or
// a record missing access_token/retrieved_at yields (nil, nil): structurally
// invalid state is equivalent to no credential, never an error.
func decodeRecord(data []byte) (*tokenmanager.CredentialSet, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil
	}
	if rec.AccessToken == nil || *rec.AccessToken == "" || rec.RetrievedAt == nil {
		return nil, nil
	}
	return &tokenmanager.CredentialSet{
		AccessToken:  *rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresIn:    secondsValue(rec.ExpiresIn),
		RetrievedAt:  *rec.RetrievedAt,
	}, nil
}

func encodeRecord(cs tokenmanager.CredentialSet) ([]byte, error) {
	expires, err := json.Marshal(cs.ExpiresIn)
	if err != nil {
		return nil, err
	}
	token := cs.AccessToken
	retrieved := cs.RetrievedAt
	data, err := json.MarshalIndent(record{
		AccessToken:  &token,
		RefreshToken: cs.RefreshToken,
		ExpiresIn:    expires,
		RetrievedAt:  &retrieved,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding credential record: %w", err)
	}
	return data, nil
}

// secondsValue mirrors the manager's expires_in policy: absent or
// non-numeric stored values become 0 so the credential reads as expired.
func secondsValue(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}
