package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/reika0717/sparql-proxy/test"
)

func TestVersionString(t *testing.T) {
	typ := reflect.TypeOf(Version)
	if typ.String() != "string" {
		t.Errorf("expected VERSION to be a string, got %#v (type %#v)", Version, typ.String())
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT_VAR", "5")
	i, err := GetInt("CONFIG_TEST_INT_VAR")
	test.AssertNotError(t, err, "getting env var")
	test.AssertEquals(t, i, 5)
}

func TestGetIntError(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT_VAR", "bad")
	_, err := GetInt("CONFIG_TEST_INT_VAR")
	test.AssertError(t, err, "getting bad env var")
}

func TestGetDurationMs(t *testing.T) {
	t.Setenv("CONFIG_TEST_DURATION_VAR", "1500")
	d, err := GetDurationMs("CONFIG_TEST_DURATION_VAR")
	test.AssertNotError(t, err, "getting env var")
	test.AssertEquals(t, d, 1500*time.Millisecond)
}

func TestGetBool(t *testing.T) {
	t.Setenv("CONFIG_TEST_BOOL_VAR", "true")
	test.Assert(t, GetBool("CONFIG_TEST_BOOL_VAR"), "expected true")
	t.Setenv("CONFIG_TEST_BOOL_VAR", "1")
	test.Assert(t, !GetBool("CONFIG_TEST_BOOL_VAR"), "only the string \"true\" counts")
}
