//go:build property
// +build property

package ids

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Identifier derivation must be a pure function of its inputs.
func TestSourcePageIDDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same URL always derives the same id", prop.ForAll(
		func(url string) bool {
			a := SourcePageID(url)
			return a == SourcePageID(url) && len(a) == len("source.")+40
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestSlugClosure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("slugging is idempotent", prop.ForAll(
		func(s string) bool {
			once := Slug(s)
			return Slug(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("normalize is idempotent", prop.ForAll(
		func(s string) bool {
			once := Normalize(s)
			return Normalize(once) == once
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
