package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// CheckDirWithGolden checks the logs in dir and compares the rendered
// result against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func CheckDirWithGolden(t *testing.T, name, dir string, assertions []Assertion) *Result {
	t.Helper()

	result, err := CheckDir(dir, assertions)
	if err != nil {
		t.Fatalf("check %s: %v", dir, err)
	}
	AssertGolden(t, name, result)
	return result
}

// AssertGolden compares a result's text rendering against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	var buf bytes.Buffer
	if err := result.WriteText(&buf); err != nil {
		t.Fatalf("render result: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
