package model

import (
	"fmt"

	"github.com/hamba/avro/v2"
)

// Schema is the Avro schema of the provider's binary responses, a union of
// every record the client can receive with Content-Type application/avro.
const Schema = `[
  {
    "type": "record",
    "name": "ProfileResponse",
    "namespace": "io.attrexchange.avro.model",
    "fields": [
      {
        "name": "receipt",
        "type": {
          "type": "record",
          "name": "Receipt",
          "fields": [
            {"name": "receipt_id", "type": "string"},
            {"name": "remember_me_id", "type": "string", "default": ""},
            {"name": "parent_remember_me_id", "type": "string", "default": ""},
            {"name": "timestamp", "type": "string"},
            {"name": "sharing_outcome", "type": "string"},
            {"name": "other_party_profile_content", "type": "string", "default": ""}
          ]
        }
      }
    ]
  },
  {
    "type": "record",
    "name": "ShareURLResult",
    "namespace": "io.attrexchange.avro.model",
    "fields": [
      {"name": "qrcode", "type": "string"},
      {"name": "ref_id", "type": "string"}
    ]
  }
]`

// Record names within Schema.
const (
	ProfileResponseRecord = "io.attrexchange.avro.model.ProfileResponse"
	ShareURLResultRecord  = "io.attrexchange.avro.model.ShareURLResult"
)

// RecordSchema returns the named record schema from Schema.
func RecordSchema(fullName string) (avro.Schema, error) {
	s, err := avro.Parse(Schema)
	if err != nil {
		return nil, err
	}
	union, ok := s.(*avro.UnionSchema)
	if !ok {
		return nil, fmt.Errorf("schema is %s, not a union", s.Type())
	}
	for _, t := range union.Types() {
		if named, ok := t.(avro.NamedSchema); ok && named.FullName() == fullName {
			return t, nil
		}
	}
	return nil, fmt.Errorf("record %s not found in schema", fullName)
}
