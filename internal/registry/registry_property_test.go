//go:build property

package registry

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDocumentRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("register twice yields one document", prop.ForAll(
		func(names []string) bool {
			reg := NewDocumentRegistry(nil, nil)
			unique := make(map[string]struct{})
			for _, name := range names {
				path := fmt.Sprintf("/prop/%s.md", name)
				first := reg.Register(path)
				if reg.Register(path) != first {
					return false
				}
				unique[path] = struct{}{}
			}
			return reg.Len() == len(unique) && len(reg.ListAll()) == len(unique)
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.Property("id and path indexes are mutual inverses", prop.ForAll(
		func(names []string, removeEvery int) bool {
			reg := NewDocumentRegistry(nil, nil)
			var ids []string
			for _, name := range names {
				ids = append(ids, reg.Register(fmt.Sprintf("/prop/%s.md", name)))
			}
			for i, id := range ids {
				if removeEvery > 0 && i%removeEvery == 0 {
					reg.Remove(id)
				}
			}
			for _, doc := range reg.ListAll() {
				path, ok := reg.Locate(doc.ID)
				if !ok || path != doc.Path {
					return false
				}
				id, ok := reg.Resolve(path)
				if !ok || id != doc.ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.IntRange(0, 4),
	))

	properties.Property("position round trips", prop.ForAll(
		func(name string, line, col int) bool {
			reg := NewDocumentRegistry(nil, nil)
			id := reg.Register("/prop/" + name + ".md")
			pos := fmt.Sprintf("%d:%d-%d:%d", line, col, line, col+1)
			if err := reg.UpdatePosition(id, pos); err != nil {
				return false
			}
			return reg.CurrentPosition(id) == pos
		},
		gen.Identifier(),
		gen.IntRange(1, 10000),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
