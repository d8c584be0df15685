package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/ptv"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file uses default", func(t *testing.T) {
		n, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), n)
	})

	t.Run("empty path uses default", func(t *testing.T) {
		n, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 1071, n.CityTerminal)
	})

	t.Run("valid file", func(t *testing.T) {
		path := writeFile(t, `
lines:
  FKN: crosscity
  SDM: sandringham
cbd_stations: [1068, 1120, 1155, 1181, 1071]
city_terminal: 1071
loop_interchange: 1181
loop_label: City Loop
cross_city_group: crosscity
`)
		n, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "sandringham", n.Lines["SDM"])
		assert.True(t, n.IsCBD(1155))
		assert.False(t, n.IsCBD(1162))
		assert.Equal(t, "City Loop", n.LoopLabel)
	})

	t.Run("terminal outside CBD", func(t *testing.T) {
		path := writeFile(t, `
lines: {FKN: crosscity}
cbd_stations: [1068]
city_terminal: 1071
loop_interchange: 1068
loop_label: City Loop
cross_city_group: crosscity
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		path := writeFile(t, "lines: {FKN: crosscity}\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeFile(t, "lines: [unclosed\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestBundledNetworkFile(t *testing.T) {
	n, err := Load(filepath.Join("..", "..", "network.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), n)
}

func TestBuildRouteGroups(t *testing.T) {
	n := Default()
	routes := map[string]ptv.Route{
		"6":    {RouteType: ptv.RouteTypeTrain, RouteID: 6, RouteGTFSID: "2-FKN"},
		"11":   {RouteType: ptv.RouteTypeTrain, RouteID: 11, RouteGTFSID: "2-SDM"},
		"13":   {RouteType: ptv.RouteTypeTrain, RouteID: 13, RouteGTFSID: ""},
		"99":   {RouteType: ptv.RouteTypeTrain, RouteID: 99, RouteGTFSID: "2-XYZ"},
		"1823": {RouteType: ptv.RouteTypeVLine, RouteID: 1823, RouteGTFSID: "1-GEL"},
	}

	groups := n.BuildRouteGroups(routes)

	tests := []struct {
		route int
		want  string
	}{
		{6, "crosscity"},
		{11, "sandringham"},
		{13, GroupSpecial},
		{99, GroupSpecial},
		{1823, GroupLongDistance},
		{424242, GroupSpecial},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, groups.Group(tc.route), "route %d", tc.route)
	}

	_, ok := groups.Lookup(424242)
	assert.False(t, ok)
	g, ok := groups.Lookup(6)
	assert.True(t, ok)
	assert.Equal(t, "crosscity", g)
}
