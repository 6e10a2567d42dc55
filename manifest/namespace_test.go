package manifest

import "testing"

func TestModuleName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"util", "util"},
		{"my-util.kbc", "my_util"},
		{"my util", "my_util"},
		{"2fast.kbc", "_2fast"},
		{"ok_name2", "ok_name2"},
		{"weird$chars", "weirdchars"},
		{".hidden", "hidden"},
		{"", ""},
	}

	for _, tc := range tests {
		got := ModuleName(tc.input)
		if got != tc.want {
			t.Errorf("ModuleName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestIsModuleName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"util", true},
		{"net.http", true},
		{"_private", true},
		{"a1", true},
		{"", false},
		{"1a", false},
		{"a..b", false},
		{"a.", false},
		{"a-b", false},
	}

	for _, tc := range tests {
		if got := IsModuleName(tc.name); got != tc.want {
			t.Errorf("IsModuleName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsReservedModule(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"builtins", true},
		{"__main__", true},
		{"builtins.extra", true},
		{"app.builtins", false},
		{"util", false},
	}

	for _, tc := range tests {
		if got := IsReservedModule(tc.name); got != tc.want {
			t.Errorf("IsReservedModule(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
