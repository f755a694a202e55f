package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/registry"
)

type stubBody struct {
	name     string
	version  int
	category string
}

func (b stubBody) Name() string                     { return b.name }
func (b stubBody) Version() int                     { return b.version }
func (b stubBody) Category() string                 { return b.category }
func (b stubBody) Declare(*algorithm.Properties)    {}
func (b stubBody) Exec(*algorithm.RunContext) error { return nil }

func ctor(name string, version int, category string) Constructor {
	return func() algorithm.Worker {
		return algorithm.New(stubBody{name: name, version: version, category: category})
	}
}

func subscribe(t *testing.T, c *Catalog, name string, version int, category string) {
	t.Helper()
	require.NoError(t, c.Subscribe(name, version, category, ctor(name, version, category)))
}

// === Subscribe ===

func TestCatalog_Subscribe_DuplicateIsNoop(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")
	require.NoError(t, c.Subscribe("AlgTest", 1, "Other", ctor("AlgTest", 1, "Other")))

	require.Len(t, c.Keys(), 1)
	cat, ok := c.Category(Key{"AlgTest", 1})
	require.True(t, ok)
	require.Equal(t, "Cat1", cat, "first registration wins")
}

func TestCatalog_Subscribe_NewVersionSucceeds(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")
	subscribe(t, c, "AlgTest", 2, "Cat2")

	require.Equal(t, []int{1, 2}, c.Versions("AlgTest"))
	require.Len(t, c.Keys(), 2)
}

func TestCatalog_Subscribe_InvalidKey(t *testing.T) {
	c := New()
	require.ErrorIs(t, c.Subscribe("", 1, "c", ctor("", 1, "c")), ErrInvalidKey)
	require.ErrorIs(t, c.Subscribe("A", 0, "c", ctor("A", 0, "c")), ErrInvalidKey)
	require.ErrorIs(t, c.Subscribe("A", 1, "c", nil), ErrInvalidKey)
	require.Empty(t, c.Keys())
}

func TestCatalog_SubscribeWorker_ReadsMetadata(t *testing.T) {
	c := New()
	require.NoError(t, c.SubscribeWorker(ctor("Echo", 3, "Utility")))

	require.True(t, c.Exists("Echo", 3))
	require.Equal(t, []NameCategory{{Name: "Echo", Category: "Utility"}}, c.NamesAndCategories())
}

// === Resolve / Create ===

func TestCatalog_Resolve_Latest(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 2, "Cat2")
	subscribe(t, c, "AlgTest", 1, "Cat1")

	key, err := c.Resolve("AlgTest", LatestVersion)
	require.NoError(t, err)
	require.Equal(t, Key{Name: "AlgTest", Version: 2}, key)
}

func TestCatalog_Resolve_UnknownName(t *testing.T) {
	c := New()
	_, err := c.Resolve("Nope", LatestVersion)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCatalog_Resolve_UnknownVersion(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")

	_, err := c.Resolve("AlgTest", 3)
	require.ErrorIs(t, err, ErrUnknownVersion)
	require.False(t, c.Exists("AlgTest", 3))
	require.True(t, c.Exists("AlgTest", LatestVersion))
}

func TestCatalog_Create_FreshWorkers(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")

	a, err := c.Create("AlgTest", 1)
	require.NoError(t, err)
	b, err := c.Create("AlgTest", LatestVersion)
	require.NoError(t, err)

	require.NotSame(t, a, b)
	require.Equal(t, "AlgTest", a.Name())
	require.Equal(t, 1, b.Version())
}

// === Unsubscribe ===

func TestCatalog_Unsubscribe(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")
	subscribe(t, c, "AlgTest", 2, "Cat2")

	require.NoError(t, c.Unsubscribe("AlgTest", 2))
	key, err := c.Resolve("AlgTest", LatestVersion)
	require.NoError(t, err)
	require.Equal(t, 1, key.Version)

	require.NoError(t, c.Unsubscribe("AlgTest", 1))
	require.False(t, c.Exists("AlgTest", LatestVersion))
	require.Empty(t, c.NamesAndCategories())

	require.ErrorIs(t, c.Unsubscribe("AlgTest", 1), registry.ErrNotFound)
}

// === NamesAndCategories ===

func TestCatalog_NamesAndCategories_HighestVersionCategory(t *testing.T) {
	c := New()
	subscribe(t, c, "AlgTest", 1, "Cat1")
	subscribe(t, c, "AlgTest", 2, "Cat2")
	subscribe(t, c, "AlgTestSecond", 1, "Cat3")
	subscribe(t, c, "AlgTest", 4, "Cat4")

	require.Equal(t, []NameCategory{
		{Name: "AlgTest", Category: "Cat4"},
		{Name: "AlgTestSecond", Category: "Cat3"},
	}, c.NamesAndCategories())
}

// === Property-Based Tests ===

func TestCatalog_Property_DedupAndLatest(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := New()
		model := make(map[string]map[int]bool)

		n := rapid.IntRange(1, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			name := rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "name")
			version := rapid.IntRange(1, 5).Draw(t, "version")
			require.NoError(t, c.Subscribe(name, version, fmt.Sprintf("cat%d", version), ctor(name, version, "")))
			if model[name] == nil {
				model[name] = make(map[int]bool)
			}
			model[name][version] = true
		}

		total := 0
		for name, vs := range model {
			total += len(vs)
			latest := 0
			for v := range vs {
				latest = max(latest, v)
			}
			key, err := c.Resolve(name, LatestVersion)
			require.NoError(t, err)
			require.Equal(t, latest, key.Version)
		}
		require.Len(t, c.Keys(), total)
		require.Len(t, c.NamesAndCategories(), len(model))
	})
}
