package ui

import (
	"strings"
	"testing"
)

func TestFormatControl(t *testing.T) {
	tests := []struct {
		name string
		key  string
		desc string
	}{
		{name: "basic control", key: "q", desc: "quit"},
		{name: "longer key", key: "ctrl+c", desc: "stop server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatControl(tt.key, tt.desc)
			if !strings.Contains(got, tt.key) {
				t.Errorf("FormatControl() missing key %q", tt.key)
			}
			if !strings.Contains(got, tt.desc) {
				t.Errorf("FormatControl() missing description %q", tt.desc)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		status    string
		indicator string
	}{
		{name: "connected status", connected: true, status: "serving", indicator: "●"},
		{name: "disconnected status", connected: false, status: "stopped", indicator: "○"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatStatus(tt.connected, tt.status)
			if !strings.Contains(got, tt.status) {
				t.Errorf("FormatStatus() missing status text %q", tt.status)
			}
			if !strings.Contains(got, tt.indicator) {
				t.Errorf("FormatStatus() missing indicator %q", tt.indicator)
			}
		})
	}
}

func TestFormatAppHeader(t *testing.T) {
	got := FormatAppHeader("WINDOWS", "3 windows")
	for _, want := range []string{"ORBITAL", "WINDOWS", "3 windows"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatAppHeader() missing %q in %q", want, got)
		}
	}
}

func TestCreateSeparator(t *testing.T) {
	tests := []struct {
		name  string
		width int
		char  string
		want  int
	}{
		{name: "explicit", width: 10, char: "=", want: 10},
		{name: "defaults", width: 0, char: "", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CreateSeparator(tt.width, tt.char)
			char := tt.char
			if char == "" {
				char = "─"
			}
			if n := strings.Count(got, char); n != tt.want {
				t.Errorf("CreateSeparator() has %d %q, want %d", n, char, tt.want)
			}
		})
	}
}
