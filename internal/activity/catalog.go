package activity

import (
	"sort"
	"strings"
)

// defaultAliases maps canonical dungeon names to the abbreviations players use.
var defaultAliases = map[string][]string{
	"Ara-Kara, City of Echoes":                      {"ara", "city of echoes", "coe"},
	"The Dawnbreaker":                               {"dawnbreaker", "breaker"},
	"Operation: Floodgate":                          {"flood", "floodgate", "of"},
	"Priory of the Sacred Flame":                    {"priory", "sacred", "flame", "psf"},
	"Eco-Dome Al'dani":                              {"eco", "eco-dome", "dome"},
	"Halls of Atonement":                            {"hoa", "halls of atonement", "halls"},
	"Tazavesh the Veiled Market, Streets of Wonder": {"sow", "streets of wonder", "streets"},
	"Tazavesh the Veiled Market, So'leah's Gambit":  {"sol", "gambit", "sg"},
}

// Catalog resolves free-form input to canonical activity names.
type Catalog struct {
	lookup map[string]string
	names  []string
}

// NewCatalog builds a catalog from canonical name → aliases. A nil map uses
// the built-in dungeon list.
func NewCatalog(aliases map[string][]string) *Catalog {
	if aliases == nil {
		aliases = defaultAliases
	}
	c := &Catalog{lookup: make(map[string]string)}
	for name, list := range aliases {
		c.names = append(c.names, name)
		c.lookup[normalize(name)] = name
		for _, alias := range list {
			c.lookup[normalize(alias)] = name
		}
	}
	sort.Strings(c.names)
	return c
}

// Lookup returns the canonical name for input.
func (c *Catalog) Lookup(input string) (string, bool) {
	name, ok := c.lookup[normalize(input)]
	return name, ok
}

// Names lists canonical names alphabetically.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
