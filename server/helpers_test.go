package server

import (
	"reflect"
	"testing"
)

// require_True, require_False, require_NoError, require_Error,
// require_Equal and require_Len are small hand-rolled assertion
// helpers for this package's white-box tests, generalized from
// string-only comparisons to any comparable value via reflect.DeepEqual
// so they also serve the structs and ints this package's tests compare.

func require_True(t *testing.T, b bool) {
	t.Helper()
	if !b {
		t.Errorf("require true, but got false")
	}
}

func require_False(t *testing.T, b bool) {
	t.Helper()
	if b {
		t.Errorf("require no false, but got true")
	}
}

func require_NoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("require no error, but got: %v", err)
	}
}

func require_Error(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Errorf("require error, but got none")
	}
}

func require_Equal(t *testing.T, a, b interface{}) {
	t.Helper()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("require equal, but got: %v != %v", a, b)
	}
}

func require_Len(t *testing.T, a, b int) {
	t.Helper()
	if a != b {
		t.Errorf("require len, but got: %v != %v", a, b)
	}
}
