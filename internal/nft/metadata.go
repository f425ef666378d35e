// Package nft defines the token metadata document and its assembly.
package nft

import "strconv"

// Attribute is one trait entry in the metadata document.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the canonical token metadata document pinned alongside every
// mint. Immutable once pinned; its identity is its content hash.
type Metadata struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Image        string      `json:"image"`
	AnimationURL string      `json:"animation_url"`
	Attributes   []Attribute `json:"attributes"`
}

// SeedTrait is the trait_type of the single attribute every token carries.
const SeedTrait = "Seed"

// Assemble builds the metadata document for one mint. Pure and total: the
// caller must already have pinned imageURI and audioURI. The attribute list
// always holds exactly one entry, the seed as a decimal string.
func Assemble(name, description, imageURI, audioURI string, seed uint64) Metadata {
	return Metadata{
		Name:         name,
		Description:  description,
		Image:        imageURI,
		AnimationURL: audioURI,
		Attributes: []Attribute{
			{TraitType: SeedTrait, Value: strconv.FormatUint(seed, 10)},
		},
	}
}

// Seed returns the token's seed attribute value, or "" if the document
// carries none (foreign or malformed metadata).
func (m Metadata) Seed() string {
	for _, a := range m.Attributes {
		if a.TraitType == SeedTrait {
			return a.Value
		}
	}
	return ""
}
