package dbus

import "testing"

func TestObjectPathValidateAccept(t *testing.T) {
	tests := []ObjectPath{
		"/",
		"/a",
		"/a/b_1",
	}
	for _, p := range tests {
		if err := p.Validate(); err != nil {
			t.Errorf("%q.Validate() = %v, want nil", p, err)
		}
	}
}

func TestObjectPathValidateReject(t *testing.T) {
	tests := []ObjectPath{
		"",
		"//",
		"/a/",
		"/a-b",
	}
	for _, p := range tests {
		if err := p.Validate(); err == nil {
			t.Errorf("%q.Validate() = nil, want error", p)
		}
	}
}

func TestObjectPathChild(t *testing.T) {
	tests := []struct {
		path    ObjectPath
		segment string
		want    ObjectPath
	}{
		{"/", "foo", "/foo"},
		{"/foo", "bar", "/foo/bar"},
	}
	for _, tc := range tests {
		if got := tc.path.Child(tc.segment); got != tc.want {
			t.Errorf("%q.Child(%q) = %q, want %q", tc.path, tc.segment, got, tc.want)
		}
	}
}

func TestObjectPathIsChildOf(t *testing.T) {
	tests := []struct {
		path   ObjectPath
		prefix ObjectPath
		want   bool
	}{
		{"/foo", "/", true},
		{"/foo/bar", "/foo", true},
		{"/foo", "/foo", false},
		{"/foobar", "/foo", false},
		{"/bar", "/foo", false},
	}
	for _, tc := range tests {
		if got := tc.path.isChildOf(tc.prefix); got != tc.want {
			t.Errorf("%q.isChildOf(%q) = %v, want %v", tc.path, tc.prefix, got, tc.want)
		}
	}
}
