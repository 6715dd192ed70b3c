package main

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    invocation
		wantErr bool
	}{
		{
			name: "bare version flag",
			args: []string{"-v"},
			want: invocation{showVersion: true},
		},
		{
			name: "bare help flag",
			args: []string{"--help"},
			want: invocation{showHelp: true},
		},
		{
			name: "subcommand flag is not the version flag",
			args: []string{"index", "-v"},
			want: invocation{subcommand: "index", subArgs: []string{"-v"}},
		},
		{
			name: "subcommand help stays with the subcommand",
			args: []string{"index", "-h"},
			want: invocation{subcommand: "index", subArgs: []string{"-h"}},
		},
		{
			name: "global config before subcommand",
			args: []string{"-config", "custom.yaml", "query", "what is covered?"},
			want: invocation{
				configPath: "custom.yaml",
				subcommand: "query",
				subArgs:    []string{"what is covered?"},
			},
		},
		{
			name: "subcommand with its own flags",
			args: []string{"index", "-force", "-ext", "pdf"},
			want: invocation{subcommand: "index", subArgs: []string{"-force", "-ext", "pdf"}},
		},
		{
			name: "no subcommand",
			args: []string{},
			want: invocation{},
		},
		{
			name:    "config without a value",
			args:    []string{"-config"},
			wantErr: true,
		},
		{
			name:    "unknown global flag",
			args:    []string{"-bogus", "index"},
			wantErr: true,
		},
		{
			name:    "unknown subcommand",
			args:    []string{"frobnicate"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseArgs(%v) error = nil, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs(%v) error = %v", tt.args, err)
			}
			if got.subcommand != tt.want.subcommand {
				t.Errorf("subcommand = %q, want %q", got.subcommand, tt.want.subcommand)
			}
			if !reflect.DeepEqual(got.subArgs, tt.want.subArgs) {
				t.Errorf("subArgs = %v, want %v", got.subArgs, tt.want.subArgs)
			}
			if got.configPath != tt.want.configPath {
				t.Errorf("configPath = %q, want %q", got.configPath, tt.want.configPath)
			}
			if got.showHelp != tt.want.showHelp {
				t.Errorf("showHelp = %v, want %v", got.showHelp, tt.want.showHelp)
			}
			if got.showVersion != tt.want.showVersion {
				t.Errorf("showVersion = %v, want %v", got.showVersion, tt.want.showVersion)
			}
		})
	}
}
