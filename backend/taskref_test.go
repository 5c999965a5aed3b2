package backend

import "testing"

func TestParseTaskRef(t *testing.T) {
	cases := []struct {
		in      string
		want    TaskRef
		wantErr bool
	}{
		{"7", TaskRef{ID: 7}, false},
		{" 7 ", TaskRef{ID: 7}, false},
		{"7.2", TaskRef{ID: 7, SubID: 2}, false},
		{"12.34", TaskRef{ID: 12, SubID: 34}, false},
		{"", TaskRef{}, true},
		{"abc", TaskRef{}, true},
		{"0", TaskRef{}, true},
		{"-3", TaskRef{}, true},
		{"7.", TaskRef{}, true},
		{"7.0", TaskRef{}, true},
		{".2", TaskRef{}, true},
		{"7.2.1", TaskRef{}, true},
	}

	for _, tc := range cases {
		got, err := ParseTaskRef(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTaskRef(%q): expected error, got %+v", tc.in, got)
			} else if !IsNotFound(err) {
				t.Errorf("ParseTaskRef(%q): expected not-found kind, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTaskRef(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTaskRef(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestTaskRefString(t *testing.T) {
	if got := (TaskRef{ID: 7}).String(); got != "7" {
		t.Errorf("expected \"7\", got %q", got)
	}
	if got := (TaskRef{ID: 7, SubID: 2}).String(); got != "7.2" {
		t.Errorf("expected \"7.2\", got %q", got)
	}
	if (TaskRef{ID: 7}).IsSubtask() {
		t.Error("top-level ref should not report as subtask")
	}
	if !(TaskRef{ID: 7, SubID: 2}).IsSubtask() {
		t.Error("dotted ref should report as subtask")
	}
}
