package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codes.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_WithHeader verifies loading a reference file with a named column
func TestLoad_WithHeader(t *testing.T) {
	path := writeTempCSV(t, "الشعبة,الرمز\nطب,103\nهندسة,110\n")

	list, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
	assert.False(t, list.Eligible("22103"), "suffix 103 is excluded")
	assert.False(t, list.Eligible("30110"), "suffix 110 is excluded")
	assert.True(t, list.Eligible("22104"))
}

// TestLoad_Headerless verifies loading a bare code list
func TestLoad_Headerless(t *testing.T) {
	path := writeTempCSV(t, "1,103\n2,205\n3,not-a-code\n")

	list, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
	assert.False(t, list.Eligible("22103"))
	assert.False(t, list.Eligible("11205"))
	assert.True(t, list.Eligible("99999"))
}

// TestLoad_Missing verifies missing files are reported
func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

// TestEligible_ShortCode verifies codes shorter than 3 digits use the whole
// code as suffix
func TestEligible_ShortCode(t *testing.T) {
	path := writeTempCSV(t, "الرمز\n103\n")

	list, err := Load(path)
	require.NoError(t, err)
	assert.True(t, list.Eligible("10"))
	assert.False(t, list.Eligible("103"))
}

// TestEligible_Deterministic verifies the lookup is a pure function of the
// code and the loaded list
func TestEligible_Deterministic(t *testing.T) {
	path := writeTempCSV(t, "الرمز\n103\n")

	list, err := Load(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		assert.False(t, list.Eligible("22103"))
		assert.True(t, list.Eligible("22104"))
	}
}
