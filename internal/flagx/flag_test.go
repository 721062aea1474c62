package flagx

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	allowed := []string{"-c", "-config"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "short flag with separate value",
			args: []string{"-c", "conf.json", "-a", "localhost"},
			want: []string{"-c", "conf.json"},
		},
		{
			name: "double dash with equals is normalized",
			args: []string{"--config=alt.json", "-a", "localhost"},
			want: []string{"-config=alt.json"},
		},
		{
			name: "double dash with separate value",
			args: []string{"--config", "alt.json"},
			want: []string{"-config", "alt.json"},
		},
		{
			name: "order preserved",
			args: []string{"-config=first.json", "-c", "second.json", "-x", "1"},
			want: []string{"-config=first.json", "-c", "second.json"},
		},
		{
			name: "unknown flags and positionals ignored",
			args: []string{"-x", "1", "--y=2", "positional"},
			want: []string{},
		},
		{
			name: "flag without value at end",
			args: []string{"-c"},
			want: []string{"-c"},
		},
		{
			name: "flag followed by another flag",
			args: []string{"-c", "-notvalue"},
			want: []string{"-c"},
		},
		{
			name: "equals value that looks like a flag",
			args: []string{"-config=--weird.json"},
			want: []string{"-config=--weird.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"bin", "-a", ":8000", "-config", "server.json"}
	assert.Equal(t, "server.json", JsonConfigFlags())

	os.Args = []string{"bin", "-c", "short.json"}
	assert.Equal(t, "short.json", JsonConfigFlags())

	os.Args = []string{"bin"}
	assert.Equal(t, "", JsonConfigFlags())
}

func TestParseList(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: []string{}},
		{in: "10.0.0.0/8, 192.168.0.0/16 ,", want: []string{"10.0.0.0/8", "192.168.0.0/16"}},
		{in: `["api.example.com", " internal.local "]`, want: []string{"api.example.com", "internal.local"}},
		{in: `["broken"`, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseList(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestStringList_AsFlag(t *testing.T) {
	var proxies StringList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&proxies, "proxy", "trusted proxy")

	require.NoError(t, fs.Parse([]string{"-proxy", "10.0.0.0/8,172.16.0.0/12", "-proxy", "127.0.0.1"}))

	assert.Equal(t, StringList{"10.0.0.0/8", "172.16.0.0/12", "127.0.0.1"}, proxies)
	assert.Equal(t, "10.0.0.0/8,172.16.0.0/12,127.0.0.1", proxies.String())
}
