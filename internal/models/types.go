package models

import "strings"

// TokenStandard classifies the interface a contract was probed to support.
type TokenStandard string

const (
	StandardERC721  TokenStandard = "ERC721"
	StandardERC1155 TokenStandard = "ERC1155"
	StandardUnknown TokenStandard = "UNKNOWN"
)

// TokenRecord is the cached metadata for a single (collection, tokenId) pair.
// Collection and TokenID are the immutable identity; every successful refresh
// fully replaces all other fields. Optional fields are empty strings (or a nil
// RawData map) when the corresponding source was unreachable or silent.
type TokenRecord struct {
	Collection   string                 `json:"collection"`
	TokenID      string                 `json:"token_id"`
	Standard     TokenStandard          `json:"standard"`
	TokenURI     string                 `json:"token_uri,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Description  string                 `json:"description,omitempty"`
	Image        string                 `json:"image,omitempty"`
	AnimationURL string                 `json:"animation_url,omitempty"`
	RawData      map[string]interface{} `json:"raw_data,omitempty"`
	UpdatedAt    int64                  `json:"updated_at"`
}

// CollectionRecord is the cached contract-level metadata for a collection.
type CollectionRecord struct {
	Collection  string                 `json:"collection"`
	Standard    TokenStandard          `json:"standard"`
	Name        string                 `json:"name,omitempty"`
	Symbol      string                 `json:"symbol,omitempty"`
	Owner       string                 `json:"owner,omitempty"`
	ContractURI string                 `json:"contract_uri,omitempty"`
	Description string                 `json:"description,omitempty"`
	Image       string                 `json:"image,omitempty"`
	RawData     map[string]interface{} `json:"raw_data,omitempty"`
	UpdatedAt   int64                  `json:"updated_at"`
}

// NormalizeAddress lower-cases a contract or owner address so that records
// keyed by it hit the same row regardless of caller checksum casing.
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// IsValidAddress reports whether a string is a 0x-prefixed 40-hex-digit address.
func IsValidAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return false
	}
	for _, char := range address[2:] {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f') || (char >= 'A' && char <= 'F')) {
			return false
		}
	}
	return true
}
