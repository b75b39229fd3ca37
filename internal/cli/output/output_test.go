package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "json", input: "json", want: FormatJSON},
		{name: "empty defaults to yaml", input: "", want: FormatYAML},
		{name: "case insensitive", input: "JSON", want: FormatJSON},
		{name: "whitespace trimmed", input: "  yaml ", want: FormatYAML},
		{name: "unknown", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, map[string]any{"port": 8080, "backend": "memory"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"port":8080,"backend":"memory"}`, buf.String())
	assert.Contains(t, buf.String(), "\n  ", "output should be indented")
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, map[string]string{"backend": "ldap"})
	require.NoError(t, err)
	assert.Equal(t, "backend: ldap\n", buf.String())
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	err := SimpleTable(&buf, [][2]string{
		{"Version", "1.2.3"},
		{"Commit", "abc1234"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Version")
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "Commit")
	assert.Equal(t, 2, strings.Count(strings.TrimRight(out, "\n"), "\n")+1)
}
